// Command connect probes the QoS regions of a title, acquires a multiplayer
// server in the best one and prints its address.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
	"github.com/cheildo/nexus-clash-connect/internal/connect"
	"github.com/cheildo/nexus-clash-connect/internal/pkg/logging"
)

func main() {
	configPath := flag.String("config", "./configs/development/connect.yaml", "path to the config file")
	identity := flag.String("identity", "", "custom id to log in with (random when empty)")
	verify := flag.Bool("verify", false, "issue an HTTP GET to the acquired server")
	flag.Parse()

	// --- Configuration ---
	v := viper.New()
	connect.SetDefaults(v)
	v.SetConfigFile(*configPath)
	v.SetEnvPrefix("connect")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		slog.Error("Failed to read configuration file", "path", filepath.Clean(*configPath), "error", err)
		os.Exit(1)
	}
	logging.Setup(logging.ConfigFromViper(v))

	if *identity == "" {
		*identity = v.GetString("playfab.custom_id")
	}
	if *identity == "" {
		*identity = uuid.NewString()
	}

	service, err := connect.NewFromViper(v, acquisition.WithObserver(func(t acquisition.Transition) {
		slog.Info("Acquisition step", "from", t.From.String(), "to", t.To.String(), "region", t.Region, "reason", t.Reason)
	}))
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle, err := service.Connect(ctx, *identity)
	if err != nil {
		slog.Error("Failed to acquire a server", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s region=%s session=%s\n", handle.String(), handle.Region, handle.SessionID)

	if *verify {
		if err := probeServer(ctx, handle); err != nil {
			slog.Error("Server did not answer", "address", handle.String(), "error", err)
			os.Exit(1)
		}
	}
}

// probeServer checks that the acquired server answers HTTP.
func probeServer(ctx context.Context, handle acquisition.ServerHandle) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+handle.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	slog.Info("Server answered", "address", handle.String(), "status", resp.StatusCode)
	return nil
}
