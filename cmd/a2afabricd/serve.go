// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/health"
	"github.com/a2a-mesh/fabric/internal/logger"
	"github.com/a2a-mesh/fabric/internal/metrics"
	"github.com/a2a-mesh/fabric/pkg/fabric"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fabric daemon: registry sweeper, health endpoint, metrics endpoint",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetDefaultLogger()

	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, err := fabric.New(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("build fabric: %w", err)
	}
	f.Start(ctx)
	defer func() {
		if err := f.Stop(); err != nil {
			log.Warn("fabric shutdown error", logger.Error(err))
		}
	}()

	checker := health.NewHealthChecker(5 * time.Second)
	checker.RegisterCheck("registry", health.DatabaseHealthCheck(func(ctx context.Context) error {
		if err := f.Registry.Ping(ctx); err != nil {
			return logger.NewFabricError(logger.ErrCodeRegistryUnavailable, "registry ping failed", err)
		}
		return nil
	}))
	if !cfg.Policy.Disabled && cfg.Policy.BaseURL != "" {
		checker.RegisterCheck("policy_engine", health.ServiceHealthCheck(cfg.Policy.BaseURL, func(ctx context.Context, url string) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return logger.NewFabricError(logger.ErrCodePolicyUnavailable, "policy engine unreachable", err)
			}
			resp.Body.Close()
			return nil
		}))
	}

	var servers []*http.Server

	if cfg.Health != nil && cfg.Health.Enabled {
		mux := http.NewServeMux()
		path := cfg.Health.Path
		if path == "" {
			path = "/healthz"
		}
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			status := checker.GetOverallStatus(r.Context())
			if status != health.StatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			fmt.Fprintf(w, `{"status":"%s"}`, status)
		})
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Health.Port), Handler: mux}
		servers = append(servers, srv)
		go func() {
			log.Info("health endpoint listening", logger.String("addr", srv.Addr), logger.String("path", path))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("health server stopped", logger.Error(err))
			}
		}()
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, metrics.Handler())
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		servers = append(servers, srv)
		go func() {
			log.Info("metrics endpoint listening", logger.String("addr", srv.Addr), logger.String("path", path))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", logger.Error(err))
			}
		}()
	}

	log.Info("a2afabricd started", logger.String("environment", cfg.Environment))
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown error", logger.Error(err))
		}
	}

	return nil
}
