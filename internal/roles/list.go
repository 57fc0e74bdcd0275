package roles

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// List is a set of role tags persisted as a JSON array column. Unknown tags
// are rejected in both directions: writes fail before they reach the
// database and reads fail instead of resurrecting a tag the code no longer
// defines.
type List []Role

// Value implements driver.Valuer, serialising the list as a sorted,
// de-duplicated JSON array of tags.
func (l List) Value() (driver.Value, error) {
	seen := make(map[Role]bool, len(l))
	tags := make([]string, 0, len(l))
	for _, r := range l {
		if !r.Valid() {
			return nil, fmt.Errorf("unknown role tag %q", string(r))
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		tags = append(tags, string(r))
	}
	sort.Strings(tags)

	data, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *List) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into roles.List", value)
	}

	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("decoding roles column: %w", err)
	}

	out := make(List, 0, len(tags))
	for _, tag := range tags {
		r, err := Parse(tag)
		if err != nil {
			return err
		}
		out = append(out, r)
	}
	*l = out
	return nil
}

// ValidateAssignment checks every role in the list may be assigned at the
// given scope kind. Membership models call this from their BeforeSave hooks
// so an out-of-scope grant is a write-time error, never a silently stored
// row.
func (l List) ValidateAssignment(kind ScopeKind) error {
	for _, r := range l {
		if !r.Valid() {
			return fmt.Errorf("unknown role tag %q", string(r))
		}
		if !r.AssignableTo(kind) {
			return fmt.Errorf("role %s cannot be assigned to a %s", r, kind)
		}
	}
	return nil
}

// Contains reports whether the list holds the given role.
func (l List) Contains(r Role) bool {
	for _, got := range l {
		if got == r {
			return true
		}
	}
	return false
}
