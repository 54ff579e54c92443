package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/sterope-gsa/sterope/internal/cluster"
	"github.com/sterope-gsa/sterope/pkg/logger"
)

func newWorkerCmd() *cobra.Command {
	var (
		listen   string
		workdir  string
		slots    int
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve simulations for a coordinator running with --workers",
		Long: `Runs a gRPC worker that executes simulator command lines on behalf of a
coordinator. The working directory must be shared with the coordinator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetDefault(logger.NewText(logLevel, cmd.ErrOrStderr()))
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}
			return cluster.NewServer(workdir, slots).Serve(cmd.Context(), lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":7070", "gRPC listen address")
	cmd.Flags().StringVar(&workdir, "workdir", ".", "shared working directory")
	cmd.Flags().IntVar(&slots, "slots", 1, "simulations run concurrently")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}
