/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/ledgersync/api"
	"github.com/blnkfinance/ledgersync/config"
	trace "github.com/blnkfinance/ledgersync/internal/traces"
)

func initializeTracing(ctx context.Context, cfg *config.Configuration) (trace.ShutdownFunc, error) {
	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName, cfg.EnableTelemetry)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

// startServer serves router until ctx is cancelled, then drains open requests.
func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// serverCommands returns the command that starts the ledger HTTP API.
func serverCommands(app *syncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "start ledgersync server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initializeTracing(ctx, app.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			a := api.NewAPI(app.engine)
			defer a.Close()

			if err := startServer(ctx, a.Router(), app.cnf.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
