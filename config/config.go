// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Database string

	RedisAddr       string
	CacheNamespace  string
	CacheTtlSeconds int

	CredentialsFile string
	TokenFile       string

	Query      string
	MaxResults int

	DryRun   bool
	RunRules bool

	// TrustedDomains dampen spam scores and exempt their originators
	// from low-confidence suggestions. Policy data, not logic.
	TrustedDomains []string

	Loglevel *string
}

func ReadConfig(filename string) (*Config, error) {
	config := &Config{
		Database:        "gmailsweep.db",
		RedisAddr:       "localhost:6379",
		CacheNamespace:  "mailbox",
		CacheTtlSeconds: 3600,
		CredentialsFile: "client_secret.json",
		TokenFile:       "token.json",
		MaxResults:      1000,
		DryRun:          true,
		TrustedDomains: []string{
			"gmail.com", "google.com", "microsoft.com",
			"apple.com", "amazon.com", "github.com",
		},
	}

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if err := validateNonEmptyStringField(c.Database, "Database name must not be empty, set to a filename for the sqlite database"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.CredentialsFile, "CredentialsFile must not be empty, set to the path of the oauth client secret json"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.TokenFile, "TokenFile must not be empty, set to the path of the cached oauth token"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.CacheNamespace, "CacheNamespace must not be empty, set to the cache key prefix"); err != nil {
		return err
	}

	if c.CacheTtlSeconds <= 0 {
		return fmt.Errorf("CacheTtlSeconds must be positive, got %d", c.CacheTtlSeconds)
	}

	if c.MaxResults <= 0 {
		return fmt.Errorf("MaxResults must be positive, got %d", c.MaxResults)
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}
