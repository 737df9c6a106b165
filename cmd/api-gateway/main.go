package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/viper"

	"github.com/cheildo/nexus-clash-connect/internal/apigateway"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/kafka"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/logging"
)

func main() {
	// --- Configuration Loading ---
	viper.SetConfigName("api-gateway")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs/development")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("Failed to read configuration file", "error", err)
		os.Exit(1)
	}
	logging.Setup(logging.ConfigFromViper(viper.GetViper()))

	secret := viper.GetString("jwt.secret_key")
	if secret == "" {
		slog.Error("jwt.secret_key is required")
		os.Exit(1)
	}

	// --- Server Event Relay ---
	cm := apigateway.NewConnectionManager()
	consumer := apigateway.NewServerReadyConsumer(
		kafka.NewConsumer(kafka.ConfigFromViper(viper.GetViper(), "kafka.server_ready_topic")),
		cm,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	// --- HTTP Router and Middleware Setup ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "connections": cm.Count()})
	})

	// Group routes under a `/api/v1` prefix. The websocket route is kept out
	// of the timeout middleware since the connection is long lived.
	r.Route("/api/v1", func(r chi.Router) {
		r.Handle("/ws", apigateway.NewWebsocketHandler(apigateway.NewTokenVerifier(secret), cm))
	})

	slog.Info("All routes initialized.")

	// --- HTTP Server Initialization and Graceful Shutdown ---
	httpPort := viper.GetString("http_server.port")
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", httpPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("API Gateway starting...", "port", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Could not start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down API Gateway server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	slog.Info("API Gateway server stopped.")
}
