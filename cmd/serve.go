package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmorgan81/circuitcraft/internal/handler"
	"github.com/dmorgan81/circuitcraft/internal/inject"
	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/dmorgan81/circuitcraft/internal/session"
	"github.com/samber/do"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the circuit generation form over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := log.FromContextOrDiscard(ctx)

		injector := inject.Setup(ctx, cfg)
		defer func() {
			if err := injector.Shutdown(); err != nil {
				logger.Error("shutdown failed", "error", err)
			}
		}()

		h, err := do.Invoke[*handler.Handler](injector)
		if err != nil {
			return err
		}
		if err := do.MustInvoke[*session.Manager](injector).Start(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           h.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("listening", "addr", cfg.ListenAddr, "api_url", cfg.APIURL)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(ctx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "address to listen on")
	lo.Must0(v.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen")))
}
