package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/gatekit-db/gatekit/pkg/gateway"
)

// LoadConnectorConfig loads connection settings from:
// 1. DATABASE_URL environment variable (priority)
// 2. .gatekit file in the current directory
func LoadConnectorConfig() (gateway.StoreConfig, error) {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		config, err := gateway.ParseConnectionString(databaseURL)
		if err != nil {
			return gateway.StoreConfig{}, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		if verbose {
			fmt.Println("Using DATABASE_URL from environment")
		}
		return config, nil
	}

	configPath := ".gatekit"
	if _, err := os.Stat(configPath); err == nil {
		fileConfig := struct {
			Database struct {
				Host     string `toml:"host"`
				Port     int    `toml:"port"`
				Database string `toml:"database"`
				User     string `toml:"user"`
				Password string `toml:"password"`
				MaxConns int32  `toml:"max_conns"`
				MinConns int32  `toml:"min_conns"`
			} `toml:"database"`
		}{}

		if _, err := toml.DecodeFile(configPath, &fileConfig); err != nil {
			return gateway.StoreConfig{}, fmt.Errorf("invalid %s file: %w", configPath, err)
		}

		config := gateway.DefaultStoreConfig()
		if fileConfig.Database.Host != "" {
			config.Host = fileConfig.Database.Host
		}
		if fileConfig.Database.Port != 0 {
			config.Port = fileConfig.Database.Port
		}
		if fileConfig.Database.Database != "" {
			config.Database = fileConfig.Database.Database
		}
		if fileConfig.Database.User != "" {
			config.User = fileConfig.Database.User
		}
		if fileConfig.Database.Password != "" {
			config.Password = fileConfig.Database.Password
		}
		if fileConfig.Database.MaxConns != 0 {
			config.MaxConns = fileConfig.Database.MaxConns
		}
		if fileConfig.Database.MinConns != 0 {
			config.MinConns = fileConfig.Database.MinConns
		}
		return config, nil
	}

	return gateway.DefaultStoreConfig(), nil
}
