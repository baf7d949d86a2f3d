package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/coursectx/internal/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Serve the index_document, retrieve_chunks and rag_status tools over
stdio. Logs go to stderr so stdout carries only the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, appOptions{stderrLogs: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.Background()) }()

			srv, err := mcp.NewServer(&mcp.Config{
				Name:         "coursectx",
				Version:      version,
				MaxFileBytes: a.config().Upload.MaxBytes,
				Logger:       a.logger,
			}, a.svc)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
