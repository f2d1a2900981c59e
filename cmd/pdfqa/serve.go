package main

import (
	"context"
	"errors"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"pdf-rag/internal/history"
	"pdf-rag/internal/pipeline"
	"pdf-rag/internal/server"
)

var (
	serveAddr string
	serveWait bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question answering API over HTTP",
	Long: `Starts the HTTP API. The corpus is indexed in the background and
/api/v1/health reports 503 until the pipeline is ready, unless --wait is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveWait, "wait", false, "index the corpus before accepting connections")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	addr := appConfig.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	o, cleanup, err := pipeline.FromConfig(ctx, appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	if serveWait {
		if err := o.Initialize(ctx); err != nil {
			return err
		}
	} else {
		go func() {
			if err := o.Initialize(ctx); err != nil {
				log.Error().Err(err).Msg("background indexing failed, restart to retry")
			}
		}()
	}

	srv := server.New(o, history.NewStore(), server.Config{
		AllowOrigins: appConfig.Server.AllowOrigins,
		AccessLog:    true,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(appConfig.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
