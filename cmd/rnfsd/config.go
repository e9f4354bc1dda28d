package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/pyropy/rnfs/core/model"
)

type Config struct {
	Server struct {
		Host string `envconfig:"SERVER_HOST" default:"127.0.0.1"`
		Port int    `envconfig:"SERVER_PORT" default:"4040"`
	}
	Metrics struct {
		Addr string `envconfig:"METRICS_ADDR"`
	}
	Node struct {
		Name          string `envconfig:"NODE_NAME" default:"rnfs-node"`
		AdvertiseAddr string `envconfig:"ADVERTISE_ADDR"`
		AutoFetch     bool   `envconfig:"AUTO_FETCH"`
		Relay         bool   `envconfig:"RELAY" default:"true"`
		ChunkSize     int    `envconfig:"CHUNK_SIZE" default:"65536"`
	}
	Store struct {
		Path          string  `envconfig:"STORE_PATH" default:"store"`
		CapacityBytes uint64  `envconfig:"STORE_CAPACITY_BYTES"`
		HighWaterMark float64 `envconfig:"STORE_HIGH_WATER_MARK" default:"0.9"`
	}
	Ledger struct {
		RetryCeiling int           `envconfig:"RETRY_CEILING" default:"5"`
		Timeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
		BackoffBase  time.Duration `envconfig:"BACKOFF_BASE" default:"1s"`
		BackoffMax   time.Duration `envconfig:"BACKOFF_MAX" default:"1m"`
	}
	Announce struct {
		Interval time.Duration `envconfig:"ANNOUNCE_INTERVAL" default:"30s"`
	}
	// Peers is a comma-separated list of addr=hop entries, for example
	// "10.0.0.2:4040=1,10.0.0.7:4040=3".
	Peers []string `envconfig:"PEERS"`
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("RNFS", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// PeerTable parses the configured peer list into routing hints.
func (c *Config) PeerTable() ([]model.Peer, error) {
	peers := make([]model.Peer, 0, len(c.Peers))

	for _, entry := range c.Peers {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		addr, hopStr, found := strings.Cut(entry, "=")
		hop := 1
		if found {
			h, err := strconv.Atoi(hopStr)
			if err != nil {
				return nil, fmt.Errorf("invalid peer entry %q: %w", entry, err)
			}
			hop = h
		}

		peers = append(peers, model.Peer{Address: addr, HopDistance: hop})
	}

	return peers, nil
}
