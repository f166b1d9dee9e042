package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trackrhq/trackr/internal/auth"
	"github.com/trackrhq/trackr/internal/models"
)

var (
	userName     string
	userEmail    string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun()
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userDeleteCmd = &cobra.Command{
	Use:     "delete <user-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a user",
	Long:    "Delete a user. Issues reported by the user are kept and become unassigned.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userDeleteRun(args[0])
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "User name (required)")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Password (required)")
	_ = userAddCmd.MarkFlagRequired("name")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}

func userAddRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if len(userPassword) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}

	hash, err := auth.HashPassword(userPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Name:         userName,
		Email:        userEmail,
		PasswordHash: hash,
	}

	if err := s.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	ui.Success("Created user #%d: %s <%s>", u.ID, u.Name, u.Email)
	return nil
}

func userListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	users, err := s.ListUsers(context.Background())
	if err != nil {
		return err
	}

	if len(users) == 0 {
		ui.Info("No users found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Email", "Created"})
	for _, u := range users {
		_ = table.Append([]string{
			fmt.Sprintf("%d", u.ID),
			u.Name,
			u.Email,
			u.CreatedAt.Format("2006-01-02"),
		})
	}
	_ = table.Render()
	return nil
}

func userDeleteRun(arg string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id: %s", arg)
	}

	if err := s.DeleteUser(context.Background(), id); err != nil {
		return err
	}

	ui.Success("Deleted user #%d", id)
	return nil
}
