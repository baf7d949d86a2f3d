// Coursectx indexes one course document (PDF or PPTX) and retrieves the
// passages most relevant to a question.
//
// Usage:
//
//	coursectx serve                  # HTTP API with config hot reload
//	coursectx mcp                    # MCP server on stdio
//	coursectx ask week3.pdf "what is memoization"
//	coursectx version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "coursectx",
		Short: "Retrieval over a single course document",
		Long: `coursectx extracts text from a PDF or PPTX, splits it into overlapping chunks
and answers retrieval queries with vector search when an embedding provider
is configured, falling back to lexical search otherwise.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/coursectx/config.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newMCPCmd(&configPath),
		newAskCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "coursectx by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
