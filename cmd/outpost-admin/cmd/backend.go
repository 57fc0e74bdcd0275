package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/models"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Manage backends and their tokens",
}

var backendCreateCmd = &cobra.Command{
	Use:   "create <name> <slug>",
	Short: "Register a backend",
	Long: `Register a backend and print its initial auth token.

The token is only displayed once; rotate it if lost.`,
	Args: cobra.ExactArgs(2),
	RunE: runBackendCreate,
}

var backendListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered backends",
	Args:    cobra.NoArgs,
	RunE:    runBackendList,
}

var backendRotateCmd = &cobra.Command{
	Use:   "rotate-token <slug>",
	Short: "Rotate a backend's auth token",
	Long: `Replace a backend's auth token and print the new one.

The old token stops working the moment the new one is issued.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackendRotate,
}

func init() {
	rootCmd.AddCommand(backendCmd)
	backendCmd.AddCommand(backendCreateCmd)
	backendCmd.AddCommand(backendListCmd)
	backendCmd.AddCommand(backendRotateCmd)
}

func runBackendCreate(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}

	backend := models.Backend{Name: args[0], Slug: args[1]}
	if err := database.Create(&backend).Error; err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}

	fmt.Printf("Backend created\n")
	fmt.Printf("Slug:  %s\n", backend.Slug)
	fmt.Printf("Token: %s\n", backend.AuthToken)
	return nil
}

func runBackendList(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}

	var backends []models.Backend
	if err := database.Order("slug").Find(&backends).Error; err != nil {
		return fmt.Errorf("listing backends: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME\tCREATED")
	for _, b := range backends {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.Slug, b.Name, b.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runBackendRotate(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}

	var backend models.Backend
	err = database.Where("slug = ?", args[0]).First(&backend).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no backend with slug %q", args[0])
	}
	if err != nil {
		return err
	}

	if err := backend.RotateToken(database); err != nil {
		return err
	}

	fmt.Printf("Token rotated\n")
	fmt.Printf("Slug:  %s\n", backend.Slug)
	fmt.Printf("Token: %s\n", backend.AuthToken)
	return nil
}
