package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/coursectx/internal/document"
	httpserver "github.com/fyrsmithlabs/coursectx/internal/http"
)

func newAskCmd(configPath *string) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "ask <file> <query>",
		Short: "Index a document and print the chunks matching a query",
		Example: `  coursectx ask week3.pptx "base case of a recursive function"
  coursectx ask notes.pdf "krebs cycle" -k 3`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, appOptions{stderrLogs: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.Background()) }()
			return runAsk(ctx, a.svc, args[0], args[1], topK, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", httpserver.DefaultTopK, "number of chunks to print")
	return cmd
}

type askService interface {
	UploadAndIndex(ctx context.Context, filename string, data []byte) (*document.IndexResult, error)
	RetrieveWithMode(ctx context.Context, query string, topK int) document.Retrieval
}

// runAsk indexes path and prints the retrieval for query. A vector
// indexing failure is reported on errOut and the lexical results are still
// printed.
func runAsk(ctx context.Context, svc askService, path, query string, topK int, out, errOut io.Writer) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("query must not be empty")
	}
	if topK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", topK)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	res, err := svc.UploadAndIndex(ctx, filepath.Base(path), data)
	switch {
	case err == nil:
	case errors.Is(err, document.ErrIndexing) && res != nil:
		fmt.Fprintf(errOut, "warning: %v; using lexical search\n", err)
	default:
		return err
	}

	r := svc.RetrieveWithMode(ctx, query, topK)
	fmt.Fprintf(out, "%s: %d pages, %d chunks, search=%s\n", res.Document, res.Pages, res.Chunks, r.Mode)
	if len(r.Chunks) == 0 {
		fmt.Fprintln(out, "No indexed content matched.")
		return nil
	}
	for i, c := range r.Chunks {
		fmt.Fprintf(out, "\n%d. [%s p.%d]\n%s\n", i+1, c.Source, c.PageNumber, c.Content)
	}
	return nil
}
