// Copyright 2024 Bolt Server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the BOLT_* environment variables into a typed,
// validated configuration struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable knob of the bolt server.
type Config struct {
	ServerHost string
	ServerPort int
	// ConnectionWaitQueue is the configured TCP listen backlog. The socket
	// server only logs it; the listener is opened with Go's default
	// backlog.
	ConnectionWaitQueue int

	LogFile     string
	LogLevel    string
	LogMessages bool

	TickInterval time.Duration

	PluginDir string

	// MetricsAddr, when non-empty, serves Prometheus metrics on this
	// address. Empty disables the metrics HTTP server.
	MetricsAddr string
}

// Default returns the configuration that would result from an empty
// environment.
func Default() Config {
	return Config{
		ServerHost:          "127.0.0.1",
		ServerPort:          5200,
		ConnectionWaitQueue: 100,
		LogFile:             "",
		LogLevel:            "info",
		LogMessages:         false,
		TickInterval:        500 * time.Millisecond,
		PluginDir:           "./bolt_modules",
		MetricsAddr:         "",
	}
}

// FromEnv loads Config from the process environment, falling back to
// Default() for any unset variable.
func FromEnv() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv("BOLT_SERVER_HOST"); ok && v != "" {
		cfg.ServerHost = v
	}
	if v, ok := os.LookupEnv("BOLT_SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("BOLT_SERVER_PORT: %w", err)
		}
		cfg.ServerPort = port
	}
	if v, ok := os.LookupEnv("BOLT_SERVER_CONNECTION_WAIT_QUEUE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("BOLT_SERVER_CONNECTION_WAIT_QUEUE: %w", err)
		}
		cfg.ConnectionWaitQueue = n
	}
	if v, ok := os.LookupEnv("BOLT_LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := os.LookupEnv("BOLT_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("BOLT_LOG_MESSAGES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("BOLT_LOG_MESSAGES: %w", err)
		}
		cfg.LogMessages = b
	}
	if v, ok := os.LookupEnv("BOLT_TICK_INTERVAL_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("BOLT_TICK_INTERVAL_MS: %w", err)
		}
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if v, ok := os.LookupEnv("BOLT_PLUGIN_DIR"); ok && v != "" {
		cfg.PluginDir = v
	}
	if v, ok := os.LookupEnv("BOLT_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}

	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return Config{}, fmt.Errorf("invalid server port: %d", cfg.ServerPort)
	}
	if cfg.ConnectionWaitQueue <= 0 {
		return Config{}, fmt.Errorf("invalid connection wait queue size: %d", cfg.ConnectionWaitQueue)
	}

	return cfg, nil
}
