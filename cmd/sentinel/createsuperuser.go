package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newCreateSuperuserCommand(ctx *commandContext) *cobra.Command {
	var email, password, fullName string

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()
			if password == "" {
				password = os.Getenv("SUPERUSER_PASSWORD")
			}
			if strings.TrimSpace(email) == "" || password == "" {
				return fmt.Errorf("--email and --password (or SUPERUSER_PASSWORD) are required")
			}
			application, _, err := ctx.application(cmd.Context(), "manage")
			if err != nil {
				return err
			}
			user, err := application.CreateSuperuser(cmd.Context(), email, password, fullName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created (id %d)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Administrator email")
	cmd.Flags().StringVar(&password, "password", "", "Administrator password")
	cmd.Flags().StringVar(&fullName, "full-name", "Administrator", "Administrator display name")
	return cmd
}
