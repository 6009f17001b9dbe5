// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte(contents), 0o644)
	assert.NoError(t, err)
	return path
}

func TestReadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := ReadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "gmailsweep.db", cfg.Database)
	assert.Equal(t, "mailbox", cfg.CacheNamespace)
	assert.Equal(t, 3600, cfg.CacheTtlSeconds)
	assert.Equal(t, 1000, cfg.MaxResults)
	assert.True(t, cfg.DryRun)
	assert.Contains(t, cfg.TrustedDomains, "github.com")
}

func TestReadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
Database = "other.db"
CacheNamespace = "gmail"
MaxResults = 250
DryRun = false
TrustedDomains = ["example.org"]
Loglevel = "debug"
`)

	cfg, err := ReadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Database)
	assert.Equal(t, "gmail", cfg.CacheNamespace)
	assert.Equal(t, 250, cfg.MaxResults)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, []string{"example.org"}, cfg.TrustedDomains)
	assert.Equal(t, "debug", *cfg.Loglevel)
}

func TestReadConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		err      string
	}{
		{"empty database", `Database = " "`, "Database name must not be empty, set to a filename for the sqlite database"},
		{"empty credentials", `CredentialsFile = ""`, "CredentialsFile must not be empty, set to the path of the oauth client secret json"},
		{"bad ttl", `CacheTtlSeconds = -5`, "CacheTtlSeconds must be positive, got -5"},
		{"bad maxresults", `MaxResults = 0`, "MaxResults must be positive, got 0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ReadConfig(writeConfig(t, tc.contents))
			assert.Nil(t, cfg)
			assert.EqualError(t, err, tc.err)
		})
	}
}
