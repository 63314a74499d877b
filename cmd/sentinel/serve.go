package main

import (
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipMigrate bool
	var skipStatic bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Wait for PostgreSQL and Redis, prepare the media directories, apply " +
			"migrations, collect static files and serve the API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()
			application, log, err := ctx.application(cmd.Context(), "web")
			if err != nil {
				return err
			}
			if err := application.PrepareDirs(); err != nil {
				return err
			}
			if !skipMigrate {
				if err := application.Migrate(); err != nil {
					return err
				}
				log.Info("migrations applied")
			}
			if !skipStatic {
				if err := application.CollectStatic(); err != nil {
					return err
				}
			}
			return application.Serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply migrations before serving")
	cmd.Flags().BoolVar(&skipStatic, "skip-collectstatic", false, "Do not copy static files before serving")
	return cmd
}
