package connect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
	"github.com/cheildo/nexus-clash-connect/internal/playfab"
	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

// Config holds the settings of the connect flow.
type Config struct {
	BuildID           string
	IncludeAllRegions bool
	ClassifyPolicy    acquisition.ClassifyPolicy
	Protocol          string
	Port              int
	Probe             qos.Options
}

// SetDefaults registers the default connect settings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("qos.pings_per_region", qos.DefaultPingsPerRegion)
	v.SetDefault("qos.parallelism", qos.DefaultParallelism)
	v.SetDefault("qos.timeouts_to_fail", qos.DefaultTimeoutsToFail)
	v.SetDefault("qos.timeout_ms", int(qos.DefaultTimeout/time.Millisecond))
	v.SetDefault("qos.protocol", "udp")
	v.SetDefault("qos.port", qos.DefaultQoSPort)
	v.SetDefault("qos.include_all_regions", false)
	// "scan" only changes the logged classification reason.
	v.SetDefault("acquisition.classify_policy", "first")
	v.SetDefault("playfab.http_timeout_seconds", 10)
}

// ConfigFromViper reads the connect settings.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		BuildID:           v.GetString("playfab.build_id"),
		IncludeAllRegions: v.GetBool("qos.include_all_regions"),
		ClassifyPolicy:    acquisition.ParseClassifyPolicy(v.GetString("acquisition.classify_policy")),
		Protocol:          strings.ToLower(v.GetString("qos.protocol")),
		Port:              v.GetInt("qos.port"),
		Probe: qos.Options{
			Timeout:        time.Duration(v.GetInt("qos.timeout_ms")) * time.Millisecond,
			PingsPerRegion: v.GetInt("qos.pings_per_region"),
			Parallelism:    v.GetInt("qos.parallelism"),
			TimeoutsToFail: v.GetInt("qos.timeouts_to_fail"),
		},
	}
	if cfg.BuildID == "" {
		return Config{}, fmt.Errorf("playfab.build_id is required")
	}
	if cfg.Protocol != "udp" && cfg.Protocol != "tcp" {
		return Config{}, fmt.Errorf("unsupported qos.protocol %q", cfg.Protocol)
	}
	return cfg, nil
}

// PlayFabConfigFromViper reads the API client settings.
func PlayFabConfigFromViper(v *viper.Viper) playfab.Config {
	return playfab.Config{
		TitleID: v.GetString("playfab.title_id"),
		BaseURL: v.GetString("playfab.base_url"),
		Timeout: time.Duration(v.GetInt("playfab.http_timeout_seconds")) * time.Second,
	}
}

// Pinger returns the pinger selected by the config.
func (c Config) Pinger() qos.Pinger {
	if c.Protocol == "tcp" {
		return qos.NewTCPPinger(c.Port)
	}
	return qos.NewUDPPinger(c.Port)
}

// PlayFabAuthenticator logs identities in through the PlayFab API.
func PlayFabAuthenticator(client *playfab.Client) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, identity string) (Session, error) {
		session, err := client.Login(ctx, identity)
		if err != nil {
			return nil, err
		}
		return session, nil
	})
}

// NewFromViper builds a ready-to-use Service from configuration.
func NewFromViper(v *viper.Viper, seqOpts ...acquisition.Option) (*Service, error) {
	cfg, err := ConfigFromViper(v)
	if err != nil {
		return nil, err
	}
	client, err := playfab.NewClient(PlayFabConfigFromViper(v))
	if err != nil {
		return nil, err
	}
	coordinator := qos.NewCoordinator(cfg.Pinger(), cfg.Probe)
	return NewService(PlayFabAuthenticator(client), coordinator, cfg, seqOpts...), nil
}
