package main

import (
	"github.com/spf13/cobra"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume background tasks from the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()
			application, log, err := ctx.application(cmd.Context(), "worker")
			if err != nil {
				return err
			}
			if err := application.PrepareDirs(); err != nil {
				return err
			}
			log.Info("worker started")
			return application.RunWorker(cmd.Context())
		},
	}
}

func newBeatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "beat",
		Short: "Enqueue periodic tasks on schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()
			application, log, err := ctx.application(cmd.Context(), "beat")
			if err != nil {
				return err
			}
			log.Info("scheduler started")
			return application.RunBeat(cmd.Context())
		},
	}
}
