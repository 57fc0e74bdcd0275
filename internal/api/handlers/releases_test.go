package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencohort/outpost/internal/auth"
	"github.com/opencohort/outpost/internal/models"
	"github.com/opencohort/outpost/internal/notify"
	"github.com/opencohort/outpost/internal/releases"
	"github.com/opencohort/outpost/internal/roles"
	"github.com/opencohort/outpost/internal/store"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Org{},
		&models.Project{},
		&models.Workspace{},
		&models.Backend{},
		&models.OrgMembership{},
		&models.ProjectMembership{},
		&models.BackendMembership{},
		&models.Release{},
		&models.ReleaseFile{},
		&models.Snapshot{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// fixtures is the standing cast for handler tests: one workspace, two
// backends, and users covering each relevant permission level.
type fixtures struct {
	ws           models.Workspace
	backend      models.Backend
	backend2     models.Backend
	uploader     models.User // OutputChecker, member of backend
	collaborator models.User // ProjectCollaborator on the project, read-only
	publisher    models.User // OutputPublisher on the project
	admin        models.User // StaffAreaAdministrator
	outsider     models.User // no roles anywhere
}

func setupFixtures(t *testing.T, db *gorm.DB) *fixtures {
	t.Helper()
	f := &fixtures{}

	org := models.Org{Name: "University of Testing", Slug: "uot"}
	if err := db.Create(&org).Error; err != nil {
		t.Fatal(err)
	}
	project := models.Project{Name: "Sickle Cell", Slug: "sickle-cell", OrgID: org.ID, UsesNewReleaseFlow: true}
	if err := db.Create(&project).Error; err != nil {
		t.Fatal(err)
	}
	f.ws = models.Workspace{Name: "sickle-cell-main", ProjectID: project.ID}
	if err := db.Create(&f.ws).Error; err != nil {
		t.Fatal(err)
	}
	f.ws.Project = project
	f.ws.Project.Org = org

	f.backend = models.Backend{Name: "TPP", Slug: "tpp"}
	if err := db.Create(&f.backend).Error; err != nil {
		t.Fatal(err)
	}
	f.backend2 = models.Backend{Name: "EMIS", Slug: "emis"}
	if err := db.Create(&f.backend2).Error; err != nil {
		t.Fatal(err)
	}

	newUser := func(name string, global roles.List) models.User {
		u := models.User{Username: name, Email: name + "@example.org", PasswordHash: "x", Roles: global}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		return u
	}
	f.uploader = newUser("uploader", roles.List{roles.OutputChecker})
	f.collaborator = newUser("collaborator", nil)
	f.publisher = newUser("publisher", nil)
	f.admin = newUser("admin", roles.List{roles.StaffAreaAdministrator})
	f.outsider = newUser("outsider", nil)

	memberships := []interface{}{
		&models.BackendMembership{UserID: f.uploader.ID, BackendID: f.backend.ID},
		&models.ProjectMembership{UserID: f.collaborator.ID, ProjectID: project.ID, Roles: roles.List{roles.ProjectCollaborator}},
		&models.ProjectMembership{UserID: f.publisher.ID, ProjectID: project.ID, Roles: roles.List{roles.OutputPublisher, roles.ProjectDeveloper}},
	}
	for _, m := range memberships {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("creating membership: %v", err)
		}
	}
	return f
}

func newTestHandler(t *testing.T) (*ReleaseHandler, *gorm.DB, *fixtures) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := releases.New(db, st)
	return NewReleaseHandler(db, svc, st, notify.Noop{}), db, setupFixtures(t, db)
}

// declareRelease declares a one-file release through the service.
func declareRelease(t *testing.T, h *ReleaseHandler, f *fixtures, name, content string) *models.Release {
	t.Helper()
	manifest := models.Manifest{name: store.Digest([]byte(content)).String()}
	release, err := h.svc.Declare(&f.ws, &f.backend, &f.uploader, manifest)
	if err != nil {
		t.Fatalf("declaring release: %v", err)
	}
	return release
}

func writeTestZip(t *testing.T, w io.Writer, entries map[string]string) {
	t.Helper()
	zw := zip.NewWriter(w)
	for name, content := range entries {
		entry, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
}

type uploadOpts struct {
	token       string
	osUser      string
	disposition string
	body        []byte
}

// doUpload drives the UploadFile handler against a release id.
func doUpload(t *testing.T, h *ReleaseHandler, releaseID string, opts uploadOpts) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "release_id", Value: releaseID}}
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v2/releases/"+releaseID, bytes.NewReader(opts.body))
	if opts.token != "" {
		c.Request.Header.Set("Authorization", opts.token)
	}
	if opts.osUser != "" {
		c.Request.Header.Set(osUserHeader, opts.osUser)
	}
	if opts.disposition != "" {
		c.Request.Header.Set("Content-Disposition", opts.disposition)
	}
	h.UploadFile(c)
	return w
}

func detailOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return body.Detail
}

func TestUploadFile(t *testing.T) {
	h, db, f := newTestHandler(t)
	content := "a,b\n1,2\n"
	release := declareRelease(t, h, f, "output/results.csv", content)

	w := doUpload(t, h, release.ID, uploadOpts{
		token:       f.backend.AuthToken,
		osUser:      f.uploader.Username,
		disposition: `attachment; filename="output/results.csv"`,
		body:        []byte(content),
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	fileID := w.Header().Get("File-Id")
	if fileID == "" {
		t.Error("File-Id header missing")
	}
	if got := w.Header().Get("Location"); got != "/api/v2/releases/file/"+fileID {
		t.Errorf("Location = %s", got)
	}

	var count int64
	db.Model(&models.ReleaseFile{}).Where("release_id = ?", release.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 file row, got %d", count)
	}
}

func TestUploadFileUnknownRelease(t *testing.T) {
	h, _, f := newTestHandler(t)

	w := doUpload(t, h, "deadbeef", uploadOpts{
		token:       f.backend.AuthToken,
		osUser:      f.uploader.Username,
		disposition: `attachment; filename="x.csv"`,
		body:        []byte("x"),
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown release: status = %d", w.Code)
	}
}

func TestUploadFileAuthFailuresAreGeneric(t *testing.T) {
	h, _, f := newTestHandler(t)
	release := declareRelease(t, h, f, "output.csv", "data")

	cases := []struct {
		name string
		opts uploadOpts
	}{
		{"no token", uploadOpts{osUser: f.uploader.Username}},
		{"bad token", uploadOpts{token: "wrong", osUser: f.uploader.Username}},
		{"no OS-User", uploadOpts{token: f.backend.AuthToken}},
		{"unknown OS-User", uploadOpts{token: f.backend.AuthToken, osUser: "ghost"}},
		{"user not backend member", uploadOpts{token: f.backend.AuthToken, osUser: f.collaborator.Username}},
	}

	for _, tc := range cases {
		tc.opts.disposition = `attachment; filename="output.csv"`
		tc.opts.body = []byte("data")
		w := doUpload(t, h, release.ID, tc.opts)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", tc.name, w.Code)
		}
		if detail := detailOf(t, w); detail != "Not authenticated" {
			t.Errorf("%s: detail = %q, every identity failure must look identical", tc.name, detail)
		}
	}
}

func TestUploadFilePermissionDenied(t *testing.T) {
	h, db, f := newTestHandler(t)
	release := declareRelease(t, h, f, "output.csv", "data")

	// outsider becomes a backend member but has no upload capability.
	m := models.BackendMembership{UserID: f.outsider.ID, BackendID: f.backend.ID}
	if err := db.Create(&m).Error; err != nil {
		t.Fatal(err)
	}

	w := doUpload(t, h, release.ID, uploadOpts{
		token:       f.backend.AuthToken,
		osUser:      f.outsider.Username,
		disposition: `attachment; filename="output.csv"`,
		body:        []byte("data"),
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if detail := detailOf(t, w); detail != "Forbidden" {
		t.Errorf("detail = %q", detail)
	}
}

func TestUploadFileWrongBackend(t *testing.T) {
	h, db, f := newTestHandler(t)
	release := declareRelease(t, h, f, "output.csv", "data")

	// uploader is also a member of backend2, so identity passes and the
	// backend mismatch is what gets reported.
	m := models.BackendMembership{UserID: f.uploader.ID, BackendID: f.backend2.ID}
	if err := db.Create(&m).Error; err != nil {
		t.Fatal(err)
	}

	w := doUpload(t, h, release.ID, uploadOpts{
		token:       f.backend2.AuthToken,
		osUser:      f.uploader.Username,
		disposition: `attachment; filename="output.csv"`,
		body:        []byte("data"),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	detail := detailOf(t, w)
	want := "release " + release.ID + " belongs to backend tpp, not emis"
	if detail != want {
		t.Errorf("detail = %q, want %q", detail, want)
	}
}

func TestUploadFileValidationOrdering(t *testing.T) {
	h, _, f := newTestHandler(t)
	release := declareRelease(t, h, f, "output.csv", "data")
	authed := func(o uploadOpts) uploadOpts {
		o.token = f.backend.AuthToken
		o.osUser = f.uploader.Username
		return o
	}

	// Missing Content-Disposition.
	w := doUpload(t, h, release.ID, authed(uploadOpts{body: []byte("data")}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing disposition: status = %d", w.Code)
	}

	// Filename not in manifest.
	w = doUpload(t, h, release.ID, authed(uploadOpts{
		disposition: `attachment; filename="other.csv"`,
		body:        []byte("data"),
	}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("foreign filename: status = %d", w.Code)
	}
	if detail := detailOf(t, w); detail != "other.csv is not part of this release" {
		t.Errorf("detail = %q", detail)
	}

	// Empty body.
	w = doUpload(t, h, release.ID, authed(uploadOpts{
		disposition: `attachment; filename="output.csv"`,
	}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty body: status = %d", w.Code)
	}
	if detail := detailOf(t, w); detail != "No data uploaded" {
		t.Errorf("detail = %q", detail)
	}

	// Digest mismatch.
	w = doUpload(t, h, release.ID, authed(uploadOpts{
		disposition: `attachment; filename="output.csv"`,
		body:        []byte("tampered bytes"),
	}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("digest mismatch: status = %d", w.Code)
	}

	// Successful upload, then the duplicate is reported by name.
	w = doUpload(t, h, release.ID, authed(uploadOpts{
		disposition: `attachment; filename="output.csv"`,
		body:        []byte("data"),
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("valid upload: status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doUpload(t, h, release.ID, authed(uploadOpts{
		disposition: `attachment; filename="output.csv"`,
		body:        []byte("data"),
	}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate upload: status = %d", w.Code)
	}
	if detail := detailOf(t, w); detail != "output.csv has already been uploaded" {
		t.Errorf("detail = %q", detail)
	}
}

func TestCreateReleaseFromManifest(t *testing.T) {
	h, _, f := newTestHandler(t)

	manifest := models.Manifest{"output.csv": store.Digest([]byte("data")).String()}
	body, _ := json.Marshal(gin.H{"files": manifest})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "workspace_name", Value: f.ws.Name}}
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v2/workspaces/"+f.ws.Name+"/releases", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("Authorization", f.backend.AuthToken)
	c.Request.Header.Set(osUserHeader, f.uploader.Username)
	h.CreateRelease(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	releaseID := w.Header().Get("Release-Id")
	if releaseID == "" {
		t.Fatal("Release-Id header missing")
	}
	if got := w.Header().Get("Location"); got != "/api/v2/releases/"+releaseID {
		t.Errorf("Location = %s", got)
	}

	if _, err := h.svc.GetRelease(releaseID); err != nil {
		t.Errorf("declared release not loadable: %v", err)
	}
}

func TestCreateReleaseFromArchive(t *testing.T) {
	h, db, f := newTestHandler(t)

	var zipBuf bytes.Buffer
	writeTestZip(t, &zipBuf, map[string]string{
		"output.csv":     "a,b\n",
		"figures/p1.png": "png",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "workspace_name", Value: f.ws.Name}}
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v2/workspaces/"+f.ws.Name+"/releases", bytes.NewReader(zipBuf.Bytes()))
	c.Request.Header.Set("Content-Type", "application/octet-stream")
	c.Request.Header.Set("Content-Disposition", `attachment; filename="release.zip"`)
	c.Request.Header.Set("Authorization", f.backend.AuthToken)
	c.Request.Header.Set(osUserHeader, f.uploader.Username)
	h.CreateRelease(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	releaseID := w.Header().Get("Release-Id")

	var count int64
	db.Model(&models.ReleaseFile{}).Where("release_id = ?", releaseID).Count(&count)
	if count != 2 {
		t.Errorf("archive release should carry 2 file rows, got %d", count)
	}
}

func TestGetReleaseRequiresViewCapability(t *testing.T) {
	h, _, f := newTestHandler(t)
	release := declareRelease(t, h, f, "output.csv", "data")

	// Anonymous.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "release_id", Value: release.ID}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/"+release.ID, nil)
	h.GetRelease(c)
	if w.Code != http.StatusForbidden {
		t.Errorf("anonymous: status = %d", w.Code)
	}

	// Collaborator can view.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.collaborator)
	c.Params = gin.Params{{Key: "release_id", Value: release.ID}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/"+release.ID, nil)
	h.GetRelease(c)
	if w.Code != http.StatusOK {
		t.Errorf("collaborator: status = %d, body = %s", w.Code, w.Body.String())
	}

	// Outsider cannot.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.outsider)
	c.Params = gin.Params{{Key: "release_id", Value: release.ID}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/"+release.ID, nil)
	h.GetRelease(c)
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider: status = %d", w.Code)
	}
}

func TestGetReleaseReportsCompletion(t *testing.T) {
	h, _, f := newTestHandler(t)
	release := declareRelease(t, h, f, "output.csv", "data")

	getRelease := func() map[string]json.RawMessage {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Set(auth.UserContextKey, &f.collaborator)
		c.Params = gin.Params{{Key: "release_id", Value: release.ID}}
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/"+release.ID, nil)
		h.GetRelease(c)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var body map[string]json.RawMessage
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		return body
	}

	if got := string(getRelease()["complete"]); got != "false" {
		t.Errorf("declared-only release: complete = %s, want false", got)
	}

	w := doUpload(t, h, release.ID, uploadOpts{
		token:       f.backend.AuthToken,
		osUser:      f.uploader.Username,
		disposition: `attachment; filename="output.csv"`,
		body:        []byte("data"),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload failed: %d %s", w.Code, w.Body.String())
	}

	if got := string(getRelease()["complete"]); got != "true" {
		t.Errorf("fully uploaded release: complete = %s, want true", got)
	}
}

func uploadedFileID(t *testing.T, h *ReleaseHandler, f *fixtures, name, content string) string {
	t.Helper()
	release := declareRelease(t, h, f, name, content)
	w := doUpload(t, h, release.ID, uploadOpts{
		token:       f.backend.AuthToken,
		osUser:      f.uploader.Username,
		disposition: `attachment; filename="` + name + `"`,
		body:        []byte(content),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("seeding upload failed: %d %s", w.Code, w.Body.String())
	}
	return w.Header().Get("File-Id")
}

func TestGetFileStreamsBytes(t *testing.T) {
	h, _, f := newTestHandler(t)
	fileID := uploadedFileID(t, h, f, "output.csv", "a,b\n1,2\n")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.collaborator)
	c.Params = gin.Params{{Key: "file_id", Value: fileID}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/file/"+fileID, nil)
	h.GetFile(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "a,b\n1,2\n" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct == "" {
		t.Error("Content-Type should be inferred")
	}
}

func TestGetFileProxyRedirect(t *testing.T) {
	h, _, f := newTestHandler(t)
	fileID := uploadedFileID(t, h, f, "output.csv", "data")

	var file models.ReleaseFile
	if err := h.db.First(&file, "id = ?", fileID).Error; err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.collaborator)
	c.Params = gin.Params{{Key: "file_id", Value: fileID}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/file/"+fileID, nil)
	c.Request.Header.Set("Releases-Redirect", "/storage")
	h.GetFile(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := "/storage/" + f.ws.Name + "/releases/" + file.ReleaseID + "/output.csv"
	if got := w.Header().Get("X-Accel-Redirect"); got != want {
		t.Errorf("X-Accel-Redirect = %q, want %q", got, want)
	}
	if w.Body.Len() != 0 {
		t.Error("redirect response must not carry the bytes")
	}
}

func TestGetFileUnknownID(t *testing.T) {
	h, _, f := newTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.collaborator)
	c.Params = gin.Params{{Key: "file_id", Value: "not-a-uuid"}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/file/not-a-uuid", nil)
	h.GetFile(c)
	if w.Code != http.StatusNotFound {
		t.Errorf("malformed id: status = %d", w.Code)
	}
}

func TestDeleteFile(t *testing.T) {
	h, _, f := newTestHandler(t)
	fileID := uploadedFileID(t, h, f, "output.csv", "data")

	// Collaborator lacks the delete capability.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.collaborator)
	c.Params = gin.Params{{Key: "file_id", Value: fileID}}
	c.Request = httptest.NewRequest(http.MethodDelete, "/api/v2/releases/file/"+fileID, nil)
	h.DeleteFile(c)
	if w.Code != http.StatusForbidden {
		t.Fatalf("collaborator delete: status = %d", w.Code)
	}

	// Output checker can delete.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.uploader)
	c.Params = gin.Params{{Key: "file_id", Value: fileID}}
	c.Request = httptest.NewRequest(http.MethodDelete, "/api/v2/releases/file/"+fileID, nil)
	h.DeleteFile(c)
	if w.Code != http.StatusOK {
		t.Fatalf("checker delete: status = %d, body = %s", w.Code, w.Body.String())
	}

	// Deleted file reads as gone.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Set(auth.UserContextKey, &f.collaborator)
	c.Params = gin.Params{{Key: "file_id", Value: fileID}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/releases/file/"+fileID, nil)
	h.GetFile(c)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted file read: status = %d", w.Code)
	}
}

func TestWorkspaceStatusIsPublic(t *testing.T) {
	h, _, f := newTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "workspace_name", Value: f.ws.Name}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v2/workspaces/"+f.ws.Name+"/status", nil)
	h.WorkspaceStatus(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		UsesNewReleaseFlow bool `json:"uses_new_release_flow"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.UsesNewReleaseFlow {
		t.Error("fixture project uses the new flow")
	}
}

func TestNotifyRequiresBackendToken(t *testing.T) {
	h, _, f := newTestHandler(t)
	body, _ := json.Marshal(gin.H{"created_by": "alice", "path": "ws/output", "files": []string{"a.csv"}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v2/releases/notifications", bytes.NewReader(body))
	h.Notify(c)
	if w.Code != http.StatusForbidden {
		t.Errorf("no token: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v2/releases/notifications", bytes.NewReader(body))
	c.Request.Header.Set("Authorization", f.backend.AuthToken)
	h.Notify(c)
	if w.Code != http.StatusCreated {
		t.Errorf("with token: status = %d, body = %s", w.Code, w.Body.String())
	}
}
