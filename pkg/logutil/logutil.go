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

// Package logutil wires github.com/pingcap/log (itself a thin zap wrapper)
// to the BOLT_LOG_* configuration knobs.
package logutil

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bolt-server/bolt/pkg/config"
)

// Init replaces the global pingcap/log logger according to cfg. Call once
// at process startup.
func Init(cfg config.Config) error {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	logCfg := &log.Config{
		Level: level.String(),
		File: log.FileLogConfig{
			Filename: cfg.LogFile,
		},
	}

	logger, props, err := log.InitLogger(logCfg)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// MessageFields returns the zap fields used to log a message payload,
// gated by BOLT_LOG_MESSAGES so that verbose payload logging can be turned
// off without recompiling.
func MessageFields(logMessages bool, payload interface{}) []zap.Field {
	if !logMessages {
		return nil
	}
	return []zap.Field{zap.Any("payload", payload)}
}
