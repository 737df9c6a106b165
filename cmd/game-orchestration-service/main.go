package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/reflection"

	"github.com/cheildo/nexus-clash-connect/internal/connect"
	"github.com/cheildo/nexus-clash-connect/internal/orchestration"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/database"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/kafka"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/logging"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/redis"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/shutdown"
)

// Main application struct to hold dependencies.
type application struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   *orchestration.Listener
	db         *sql.DB
}

func main() {
	// --- Configuration ---
	v := viper.GetViper()
	connect.SetDefaults(v)
	v.SetDefault("provisioning.workers", 16)
	v.SetDefault("ranking.cache_ttl_seconds", 60)
	v.SetDefault("ranking.cache_key", "nexusclash:qos:ranking")
	v.SetDefault("shutdown.grace_seconds", 30)
	v.SetDefault("playfab.custom_id", "game-orchestration-service")

	v.SetConfigName("game-orchestration-service")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs/development")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		slog.Error("Failed to read configuration file", "error", err)
		os.Exit(1)
	}
	logging.Setup(logging.ConfigFromViper(v))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Storage Initialization ---
	db, err := database.NewPostgresDB(ctx, v.GetString("database.url"))
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	rdb, err := redis.NewClient(ctx, redis.ConfigFromViper(v))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// --- Kafka Initialization ---
	consumer := kafka.NewConsumer(kafka.ConfigFromViper(v, "kafka.match_found_topic"))
	producer := kafka.NewProducer(kafka.ConfigFromViper(v, "kafka.server_ready_topic"))

	// --- Dependency Injection ---
	engine, err := connect.NewFromViper(v)
	if err != nil {
		slog.Error("Invalid connect configuration", "error", err)
		os.Exit(1)
	}
	cache := orchestration.NewRankingCache(rdb, v.GetString("ranking.cache_key"),
		time.Duration(v.GetInt("ranking.cache_ttl_seconds"))*time.Second)
	provisioner := orchestration.NewProvisioner(engine, v.GetString("playfab.custom_id"), cache, orchestration.NewRepository(db))

	pool, err := ants.NewPool(v.GetInt("provisioning.workers"))
	if err != nil {
		slog.Error("Failed to create provisioning pool", "error", err)
		os.Exit(1)
	}

	app := &application{
		grpcServer: grpc.NewServer(),
		listener:   orchestration.NewListener(consumer, producer, provisioner, pool),
		db:         db,
	}
	app.health = orchestration.RegisterHealth(app.grpcServer)
	reflection.Register(app.grpcServer)

	// --- Start Servers ---
	go app.startGRPCServer(v.GetString("grpc_server.port"))
	go app.listener.Run(ctx)

	startDiagnosticsServer(v.GetString("diagnostics.port"))

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down servers...")
	orchestration.MarkDraining(app.health)
	cancel() // Stop consuming new matches.
	app.drain(time.Duration(v.GetInt("shutdown.grace_seconds")) * time.Second)

	app.grpcServer.GracefulStop()
	if err := app.listener.Close(); err != nil {
		slog.Error("Failed to close Kafka producer", "error", err)
	}
	app.db.Close()
	slog.Info("Servers shut down gracefully.")
}

// drain waits for in-flight acquisitions to finish or for grace to elapse.
func (app *application) drain(grace time.Duration) {
	timer := shutdown.NewTimer(func() {
		slog.Warn("Shutdown grace period elapsed", "in_flight", app.listener.GetRunningServers())
	})
	timer.Schedule(grace)
	defer timer.Cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for app.listener.GetRunningServers() > 0 {
		select {
		case <-timer.Done():
			return
		case <-ticker.C:
		}
	}
}

func (app *application) startGRPCServer(port string) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		slog.Error("Failed to listen on gRPC port", "port", port, "error", err)
		os.Exit(1)
	}

	slog.Info("Orchestration gRPC server listening", "address", lis.Addr().String())
	if err := app.grpcServer.Serve(lis); err != nil {
		slog.Error("gRPC server failed to serve", "error", err)
	}
}

func startDiagnosticsServer(port string) {
	go func() {
		slog.Info("Starting diagnostics server", "port", port)
		if err := http.ListenAndServe(fmt.Sprintf(":%s", port), nil); err != nil {
			slog.Error("Diagnostics server failed to start", "error", err)
		}
	}()
}
