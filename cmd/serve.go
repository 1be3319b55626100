package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core/fetch"
	"github.com/gaurav-prasanna/easyread/core/locate"
	"github.com/gaurav-prasanna/easyread/server"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rewrite pipeline over HTTP",
	Long: `Serve starts an HTTP API that holds documents in memory, rewrites them on
request and restores them to their original text.

  POST /v1/documents                 load a page ({"url": ...} or {"html": ...})
  GET  /v1/documents/{id}            current HTML
  GET  /v1/documents/{id}/markdown   content region as Markdown
  POST /v1/documents/{id}/rewrite    run the pipeline
  POST /v1/documents/{id}/restore    undo every change`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := zerolog.Ctx(ctx)

	store, err := openPrefs(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	browser := fetch.NewBrowser(cfg.Fetch.RemoteURL)
	defer browser.Close()

	srv := server.New(server.Options{
		Fetcher:  fetch.New(),
		Renderer: browser,
		Prefs:    store,
		NewRunner: func(ctx context.Context) (server.Runner, error) {
			return newDispatcher(ctx, store)
		},
		Locator: locate.New(cfg.Pipeline.MinContentLength),
	})

	addr := cfg.Server.Addr
	if flagAddr != "" {
		addr = flagAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(*logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WithStack(err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Errorf("shutdown: %w", err)
	}
	return nil
}
