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

// Package plugin defines the plugin-loader contract the execution engine
// consumes (Loader), plus a reference implementation (DirLoader) grounded
// on original_source/bolt_server/plugin_loader/plugin_loader.py: it scans
// a directory of plugin descriptors and validates each one against a
// compile-time registry at Load() time, rejecting unregistered plugins up
// front rather than at first dispatch (the §9 design note on validated
// capability interfaces).
package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/bolt-server/bolt/pkg/boerr"
	"github.com/bolt-server/bolt/pkg/message"
)

// Executor consumes an inbound response payload for one task. EngineHandle
// is the narrow capability (UpdateTask, NewTask) the engine exposes to it;
// it is declared in pkg/engine to avoid this package importing the engine.
type Executor interface {
	Handle(payload message.Schema, handle interface{}) error
}

// ExecutorFactory produces a new Executor for one task invocation.
type ExecutorFactory interface {
	NewExecutor() Executor
}

// ExecutorFactoryFunc adapts a plain function to ExecutorFactory.
type ExecutorFactoryFunc func() Executor

// NewExecutor implements ExecutorFactory.
func (f ExecutorFactoryFunc) NewExecutor() Executor { return f() }

// Loader resolves a plugin name to its declared message schema and to a
// factory for its executor. This is an external interface the core only
// consumes; pkg/engine depends on this interface, not on DirLoader.
type Loader interface {
	GetPluginStructure(name string) (message.Schema, error)
	GetPluginExecutor(name string) (ExecutorFactory, error)
}

// registryEntry is a compile-time-registered plugin: a schema template
// plus a constructor. Go has no runtime module import equivalent to
// Python's import machinery, so plugins register themselves from an
// init() function via RegisterPlugin, and DirLoader's directory scan only
// decides which registered plugins are *enabled* for this process.
type registryEntry struct {
	schema  message.Schema
	factory ExecutorFactory
}

var globalRegistry = map[string]registryEntry{}

// RegisterPlugin makes a plugin available to any DirLoader that enables
// it. Intended to be called from an init() function in a plugin package.
func RegisterPlugin(name string, schema message.Schema, factory ExecutorFactory) {
	globalRegistry[name] = registryEntry{schema: schema, factory: factory}
}

// descriptor is the on-disk shape of a "<name>.plugin.json" file: just a
// name, since the schema and executor come from the compile-time
// registry. Recovered from the original loader's directory-scan
// convention (bolt_modules/*.py), adapted for Go's static-linking model.
type descriptor struct {
	Name string `json:"name"`
}

// DirLoader scans Dir for plugin descriptors and validates each one
// against globalRegistry.
type DirLoader struct {
	Dir     string
	plugins map[string]registryEntry
}

// Load scans Dir, failing with boerr.ErrUnknownPlugin for any descriptor
// naming a plugin that was never registered via RegisterPlugin. Call once
// at startup; GetPluginStructure/GetPluginExecutor only ever see plugins
// that passed this validation.
func (l *DirLoader) Load() error {
	l.plugins = make(map[string]registryEntry)

	entries, err := os.ReadDir(l.Dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".plugin.json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(l.Dir, e.Name()))
		if err != nil {
			return err
		}
		var d descriptor
		if err := json.Unmarshal(b, &d); err != nil {
			return err
		}
		entry, ok := globalRegistry[d.Name]
		if !ok {
			return boerr.ErrUnknownPlugin.GenWithStackByArgs(d.Name)
		}
		l.plugins[d.Name] = entry
	}
	return nil
}

// GetPluginStructure implements Loader.
func (l *DirLoader) GetPluginStructure(name string) (message.Schema, error) {
	entry, ok := l.plugins[name]
	if !ok {
		return nil, boerr.ErrUnknownPlugin.GenWithStackByArgs(name)
	}
	return entry.schema, nil
}

// GetPluginExecutor implements Loader.
func (l *DirLoader) GetPluginExecutor(name string) (ExecutorFactory, error) {
	entry, ok := l.plugins[name]
	if !ok {
		return nil, boerr.ErrUnknownPlugin.GenWithStackByArgs(name)
	}
	return entry.factory, nil
}
