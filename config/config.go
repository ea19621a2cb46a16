// Package config loads the client configuration: which rendezvous points to
// talk to and how traffic is fronted.
package config

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/BurntSushi/toml"

	"github.com/berkmancenter/rendezvous-client/fronting"
	"github.com/berkmancenter/rendezvous-client/rendezvous"
)

type Config struct {
	// Points are the rendezvous point base URLs. Disclosure delivery is
	// all-of-these, so the list must match what recipients poll.
	Points []string `toml:"points"`
	// Fronting disables domain fronting when false; useful against local
	// servers.
	Fronting bool `toml:"fronting"`
	// FrontingHosts overrides the built-in CDN front pool.
	FrontingHosts []string `toml:"fronting_hosts"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// Default returns the shipped configuration.
func Default() Config {
	return Config{
		Points: []string{
			"https://rp1-246724171794.us-central1.run.app",
			"https://rp2-246724171794.us-central1.run.app",
			"https://rp3-246724171794.us-central1.run.app",
		},
		Fronting: true,
		LogLevel: "info",
	}
}

// Load reads a TOML file over the defaults. A missing path yields the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// Set builds the rendezvous point set described by the configuration.
func (c Config) Set() (rendezvous.Set, error) {
	client := http.DefaultClient
	if c.Fronting {
		var bases []*url.URL
		for _, raw := range c.FrontingHosts {
			u, err := url.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid fronting host %q: %w", raw, err)
			}
			bases = append(bases, u)
		}
		client = &http.Client{Transport: fronting.Transport{Bases: bases}}
	}

	var set rendezvous.Set
	for _, raw := range c.Points {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid rendezvous point %q: %w", raw, err)
		}
		set = append(set, rendezvous.NewPointWithClient(u, client))
	}
	return set, nil
}
