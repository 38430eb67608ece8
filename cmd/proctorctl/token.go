package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/service"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint signed access tokens (for testing and integrations)",
	}

	student := &cobra.Command{
		Use:   "student",
		Short: "Mint a student token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetInt("id")
			tok, err := service.NewAuthService(loadConfig(cmd)).GenerateStudentToken(id)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	student.Flags().Int("id", 0, "Student id (required)")
	_ = student.MarkFlagRequired("id")

	admin := &cobra.Command{
		Use:   "admin",
		Short: "Mint an administrator token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetInt("id")
			perms, _ := cmd.Flags().GetStringSlice("perm")
			tok, err := service.NewAuthService(loadConfig(cmd)).GenerateAdminToken(id, perms)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	admin.Flags().Int("id", 0, "Administrator id (required)")
	admin.Flags().StringSlice("perm", []string{
		string(model.PermissionSessionsMonitor),
		string(model.PermissionSessionsControl),
	}, "Permissions to embed (repeatable)")
	_ = admin.MarkFlagRequired("id")

	cmd.AddCommand(student, admin)
	return cmd
}
