package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jadenj13/devpool/internals/webhook"
)

var syncOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a sync pass for every partner issue event",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		log := clog.FromContext(ctx)

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		hooks := webhook.NewServer(a.syncOnce, a.env.WebhookSecret, a.env.GitLabSecret)
		if syncOnStart {
			hooks.Trigger(ctx)
		}

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		servers := []*http.Server{{
			Addr:         a.env.Addr,
			Handler:      hooks.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			BaseContext:  func(net.Listener) context.Context { return ctx },
		}, {
			Addr:        a.env.MetricsAddr,
			Handler:     metricsMux,
			ReadTimeout: 10 * time.Second,
		}}

		g, gctx := errgroup.WithContext(ctx)
		for _, srv := range servers {
			g.Go(func() error {
				log.With("addr", srv.Addr).Info("Listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info("Shutting down")
			shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			return errors.Join(servers[0].Shutdown(shutCtx), servers[1].Shutdown(shutCtx))
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&syncOnStart, "sync-on-start", true, "Run a sync pass as soon as the server starts")
}
