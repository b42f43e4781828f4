// Copyright 2026 The Coredrain Authors
// This file is part of Coredrain.
//
// Coredrain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Coredrain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Coredrain. If not, see <http://www.gnu.org/licenses/>.

// Package config loads coredrain's startup configuration: a TOML file
// overlaid with environment variables, validated before any component
// starts. A malformed or incomplete config is a fatal model.ConfigError,
// never a panic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/d4mr/coredrain/internal/model"
)

// Config is the full set of startup parameters.
type Config struct {
	StoragePath string `toml:"storage_path"`

	CoreLedgerURL    string `toml:"core_ledger_url"`
	AssetMetadataURL string `toml:"asset_metadata_url"`

	EVMRPCURL          string `toml:"evm_rpc_url"`
	EVMChainID         int64  `toml:"evm_chain_id"`
	ObjectStoreBucket  string `toml:"object_store_bucket"`
	ObjectStoreRegion  string `toml:"object_store_region"`

	WatchedAddresses []string `toml:"watched_addresses"`

	LogLevel string `toml:"log_level"`
}

// Default returns the configuration's tunable defaults; fields with no
// sensible default are left zero and validated as required.
func Default() Config {
	return Config{
		StoragePath: "./coredrain-data",
		LogLevel:    "info",
	}
}

// Load reads path (if it exists), overlays environment variables
// prefixed COREDRAIN_, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, &model.ConfigError{Reason: fmt.Sprintf("read config file: %v", err)}
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, &model.ConfigError{Reason: fmt.Sprintf("parse config file: %v", err)}
		}
	}

	applyEnvOverlay(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("COREDRAIN_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("COREDRAIN_CORE_LEDGER_URL"); v != "" {
		cfg.CoreLedgerURL = v
	}
	if v := os.Getenv("COREDRAIN_ASSET_METADATA_URL"); v != "" {
		cfg.AssetMetadataURL = v
	}
	if v := os.Getenv("COREDRAIN_EVM_RPC_URL"); v != "" {
		cfg.EVMRPCURL = v
	}
	if v := os.Getenv("COREDRAIN_EVM_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.EVMChainID = n
		}
	}
	if v := os.Getenv("COREDRAIN_OBJECT_STORE_BUCKET"); v != "" {
		cfg.ObjectStoreBucket = v
	}
	if v := os.Getenv("COREDRAIN_OBJECT_STORE_REGION"); v != "" {
		cfg.ObjectStoreRegion = v
	}
	if v := os.Getenv("COREDRAIN_WATCHED_ADDRESSES"); v != "" {
		cfg.WatchedAddresses = strings.Split(v, ",")
	}
	if v := os.Getenv("COREDRAIN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c *Config) validate() error {
	var missing []string
	if c.StoragePath == "" {
		missing = append(missing, "storage_path")
	}
	if c.CoreLedgerURL == "" {
		missing = append(missing, "core_ledger_url")
	}
	if c.AssetMetadataURL == "" {
		missing = append(missing, "asset_metadata_url")
	}
	if c.EVMRPCURL == "" {
		missing = append(missing, "evm_rpc_url")
	}
	if c.EVMChainID == 0 {
		missing = append(missing, "evm_chain_id")
	}
	if c.ObjectStoreBucket == "" {
		missing = append(missing, "object_store_bucket")
	}
	if len(missing) > 0 {
		return &model.ConfigError{Reason: fmt.Sprintf("missing required configuration: %s", strings.Join(missing, ", "))}
	}
	return nil
}
