package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/sentinel/internal/app/assets"
)

func newCollectStaticCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "collectstatic",
		Short: "Copy bundled static files into STATIC_ROOT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			n, err := assets.Collect(cfg.Paths.StaticRoot)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d static files copied to %s\n", n, cfg.Paths.StaticRoot)
			return nil
		},
	}
}
