package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"salonbot/internal/api"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(ctx context.Context, port int, ready api.ReadinessCheck, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := ready(ctxPing); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, "health", &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, "metrics", &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, logger)
}

func startAPIServer(ctx context.Context, port int, srv *api.HTTPServer, logger *zerolog.Logger) {
	serve(ctx, "api", &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, logger)
}

func serve(ctx context.Context, name string, srv *http.Server, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Str("server", name).Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}

// startGRPCHealth serves grpc.health.v1 and mirrors the readiness probe into
// the overall serving status.
func startGRPCHealth(ctx context.Context, port int, ready api.ReadinessCheck, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Msg("grpc health listen")
		return
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			probeCtx, cancel := context.WithTimeout(ctx, time.Second)
			status := healthpb.HealthCheckResponse_SERVING
			if err := ready(probeCtx); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			cancel()
			hs.SetServingStatus("", status)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	logger.Info().Str("server", "grpc_health").Str("addr", lis.Addr().String()).Msg("listening")
	if err := srv.Serve(lis); err != nil {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}
