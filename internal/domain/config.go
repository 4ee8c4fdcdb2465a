// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the unmarshal target for the TOML configuration file and
// environment overrides.
type Config struct {
	Version string `mapstructure:"-"`

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir string `mapstructure:"dataDir"`

	MetricsEnabled        bool   `mapstructure:"metricsEnabled"`
	MetricsHost           string `mapstructure:"metricsHost"`
	MetricsPort           int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `mapstructure:"metricsBasicAuthUsers"`

	PprofEnabled bool `mapstructure:"pprofEnabled"`

	// Lookup service (IYUU-compatible) connection.
	LookupBaseURL        string `mapstructure:"lookupBaseUrl"`
	LookupToken          string `mapstructure:"lookupToken"`
	LookupTimeoutSeconds int    `mapstructure:"lookupTimeoutSeconds"`

	// Migration gateway performing per-site uploads.
	GatewayBaseURL        string `mapstructure:"gatewayBaseUrl"`
	GatewayToken          string `mapstructure:"gatewayToken"`
	GatewayTimeoutSeconds int    `mapstructure:"gatewayTimeoutSeconds"`

	// Batch lookup fan-out.
	BatchQueryWorkers      int `mapstructure:"batchQueryWorkers"`
	BatchQueryMaxGroups    int `mapstructure:"batchQueryMaxGroups"`
	BatchTaskRetentionMins int `mapstructure:"batchTaskRetentionMinutes"`

	// Publish concurrency policy.
	PublishConcurrencyMode   string `mapstructure:"publishConcurrencyMode"`
	PublishConcurrencyManual int    `mapstructure:"publishConcurrencyManual"`
	PublishMaxConcurrency    int    `mapstructure:"publishMaxConcurrency"`

	// Site eligibility overrides. Empty slices fall back to the
	// compiled-in defaults.
	CookieExemptSites    []string `mapstructure:"cookieExemptSites"`
	PasskeyRequiredSites []string `mapstructure:"passkeyRequiredSites"`
}
