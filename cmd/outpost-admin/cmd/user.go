package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencohort/outpost/internal/auth"
	"github.com/opencohort/outpost/internal/models"
	"github.com/opencohort/outpost/internal/roles"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var (
	userEmail    string
	userPassword string
	userStaff    bool
	userRoles    []string
)

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Long: `Create a user with an optional set of global roles.

Examples:
  outpost-admin user create alice --email alice@example.org --password s3cret
  outpost-admin user create carol --email carol@example.org --password s3cret \
      --role OutputChecker --role OutputPublisher`,
	Args: cobra.ExactArgs(1),
	RunE: runUserCreate,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (required)")
	userCreateCmd.Flags().BoolVar(&userStaff, "staff", false, "Grant the staff flag (bypasses role checks)")
	userCreateCmd.Flags().StringArrayVar(&userRoles, "role", nil, "Global role to assign (repeatable)")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username := args[0]

	var assigned roles.List
	for _, tag := range userRoles {
		role, err := roles.Parse(tag)
		if err != nil {
			return err
		}
		assigned = append(assigned, role)
	}

	database, err := openDB()
	if err != nil {
		return err
	}

	passwordHash, err := auth.HashPassword(userPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := models.User{
		Username:     username,
		Email:        userEmail,
		PasswordHash: passwordHash,
		IsStaff:      userStaff,
		Roles:        assigned,
	}
	if err := database.Create(&user).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	fmt.Printf("User created\n")
	fmt.Printf("ID:       %s\n", user.ID)
	fmt.Printf("Username: %s\n", user.Username)
	fmt.Printf("Email:    %s\n", user.Email)
	if len(user.Roles) > 0 {
		fmt.Printf("Roles:    %v\n", user.Roles)
	}
	return nil
}
