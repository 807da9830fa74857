// mini-tree-server is the worker binary: a stateless HTTP service that
// builds one Merkle sum subtree per request.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/summa-dev/summa-aggregation/minitree"
)

func main() {
	app := &cli.App{
		Name:  "mini-tree-server",
		Usage: "build Merkle sum subtrees over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "port to listen on",
				Value:   4000,
				EnvVars: []string{"PORT"},
			},
			&cli.IntFlag{
				Name:    "n-currencies",
				Usage:   "number of balances per entry",
				Value:   minitree.DefaultNumCurrencies,
				EnvVars: []string{"N_CURRENCIES"},
			},
			&cli.IntFlag{
				Name:    "n-bytes",
				Usage:   "byte range every balance must fit in",
				Value:   minitree.DefaultNumBytes,
				EnvVars: []string{"N_BYTES"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("mini-tree-server exited", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.New("module", "mini-tree-server")

	handler := minitree.NewHandler(minitree.Config{
		NumCurrencies: c.Int("n-currencies"),
		NumBytes:      c.Int("n-bytes"),
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Int("port")),
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr,
			"currencies", c.Int("n-currencies"), "bytes", c.Int("n-bytes"))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
