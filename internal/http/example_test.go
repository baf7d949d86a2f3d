package http_test

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coursectx/internal/document"
	httpserver "github.com/fyrsmithlabs/coursectx/internal/http"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// ExampleServer starts the API on a local port and shuts it down.
func ExampleServer() {
	logger := logging.Nop()
	svc := document.New(nil, logger)

	server, err := httpserver.NewServer(svc, logger, &httpserver.Config{
		Host: "127.0.0.1",
		Port: 19191,
	})
	if err != nil {
		panic(err)
	}

	go func() {
		_ = server.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		panic(err)
	}

	fmt.Println("Server started and stopped successfully")
	// Output: Server started and stopped successfully
}
