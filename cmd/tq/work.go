package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattbonnell/tq"
	"github.com/mattbonnell/tq/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWorkCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Consume messages with the built-in handlers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			c := q.NewConsumer(
				tq.WithPollInterval(cfg.PollInitial, cfg.PollMax),
				tq.WithLogger(log.Logger),
			)
			registerHandlers(c)

			if cfg.MetricsAddr != "" {
				srv := &http.Server{
					Addr:              cfg.MetricsAddr,
					Handler:           newRouter(q),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Err(err).Msg("metrics server stopped")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			return c.Run(ctx)
		},
	}
	return cmd
}

// newRouter serves the process metrics and a health probe that checks the
// store answers a size query.
func newRouter(q *tq.Queue) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		n, err := q.QSize(r.Context(), tq.RouteQueue)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "ok %d\n", n)
	})
	return r
}
