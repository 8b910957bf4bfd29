// Package config loads node configuration. Built-in defaults are overlaid
// by an optional YAML or INI file, then by LEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"peerledger/validator"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_API_ADDRESS.
const EnvPrefix = "LEDGER"

var ErrUnsupportedFormat = errors.New("unsupported config file format")

type NodeConfig struct {
	NodeID           string   `yaml:"node_id" ini:"node_id" envconfig:"NODE_ID"`
	ListenAddress    string   `yaml:"listen_address" ini:"listen_address" envconfig:"LISTEN_ADDRESS" validate:"required"`
	APIAddress       string   `yaml:"api_address" ini:"api_address" envconfig:"API_ADDRESS" validate:"required"`
	PeerAddresses    []string `yaml:"peer_addresses" ini:"peer_addresses" delim:"," envconfig:"PEER_ADDRESSES" validate:"dive,url,startswith=ws"`
	DifficultyTarget uint8    `yaml:"difficulty_target" ini:"difficulty_target" envconfig:"DIFFICULTY_TARGET" validate:"lte=64"`
	PersistencePath  string   `yaml:"persistence_path" ini:"persistence_path" envconfig:"PERSISTENCE_PATH" validate:"required_unless=StorageBackend memory"`
	StorageBackend   string   `yaml:"storage_backend" ini:"storage_backend" envconfig:"STORAGE_BACKEND" validate:"oneof=leveldb bolt memory"`
	MaxPeers         int      `yaml:"max_peers" ini:"max_peers" envconfig:"MAX_PEERS" validate:"gte=1"`
	MempoolSize      int      `yaml:"mempool_size" ini:"mempool_size" envconfig:"MEMPOOL_SIZE" validate:"gte=1"`
	MiningWorkers    int      `yaml:"mining_workers" ini:"mining_workers" envconfig:"MINING_WORKERS" validate:"gte=0"`
	LogLevel         string   `yaml:"log_level" ini:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFile          string   `yaml:"log_file" ini:"log_file" envconfig:"LOG_FILE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() NodeConfig {
	return NodeConfig{
		ListenAddress:    "0.0.0.0:6001",
		APIAddress:       "0.0.0.0:8080",
		PeerAddresses:    []string{},
		DifficultyTarget: 16,
		PersistencePath:  "data",
		StorageBackend:   "leveldb",
		MaxPeers:         32,
		MempoolSize:      10000,
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty) and the environment. An empty node id is replaced by
// a fresh UUIDv7.
func Load(path string) (*NodeConfig, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if cfg.NodeID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate node id: %w", err)
		}
		cfg.NodeID = id.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that both listen addresses are
// host:port pairs. Port 0 is allowed and picks a free port.
func (c *NodeConfig) Validate() error {
	if err := validator.Validate(c); err != nil {
		return err
	}
	for name, addr := range map[string]string{"listen_address": c.ListenAddress, "api_address": c.APIAddress} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: %s: %v", validator.ErrValidationFailed, name, err)
		}
	}
	return nil
}

func loadFile(path string, cfg *NodeConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".ini":
		file, err := ini.Load(path)
		if err != nil {
			return err
		}
		return file.Section("node").MapTo(cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
