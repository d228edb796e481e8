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

package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bolt-server/bolt/pkg/message"
)

type noopExecutor struct{}

func (noopExecutor) Handle(payload message.Schema, handle interface{}) error { return nil }

type noopFactory struct{}

func (noopFactory) NewExecutor() Executor { return noopExecutor{} }

func writeDescriptor(t *testing.T, dir, filename, pluginName string) {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"`+pluginName+`"}`), 0o644))
}

func TestDirLoaderLoadsRegisteredPlugin(t *testing.T) {
	RegisterPlugin("pluginTestA", message.Schema{"x": 0}, noopFactory{})

	dir := t.TempDir()
	writeDescriptor(t, dir, "a.plugin.json", "pluginTestA")

	l := &DirLoader{Dir: dir}
	require.NoError(t, l.Load())

	schema, err := l.GetPluginStructure("pluginTestA")
	require.NoError(t, err)
	require.Equal(t, message.Schema{"x": 0}, schema)

	factory, err := l.GetPluginExecutor("pluginTestA")
	require.NoError(t, err)
	require.NotNil(t, factory)
}

func TestDirLoaderRejectsUnregisteredPlugin(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "b.plugin.json", "pluginNeverRegistered")

	l := &DirLoader{Dir: dir}
	err := l.Load()
	require.Error(t, err)
}

func TestDirLoaderIgnoresNonDescriptorFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))

	l := &DirLoader{Dir: dir}
	require.NoError(t, l.Load())

	_, err := l.GetPluginStructure("anything")
	require.Error(t, err)
}

func TestDirLoaderMissingDirIsNotAnError(t *testing.T) {
	l := &DirLoader{Dir: filepath.Join(t.TempDir(), "does-not-exist")}
	require.NoError(t, l.Load())
}

func TestGetPluginStructureBeforeLoadFails(t *testing.T) {
	l := &DirLoader{Dir: t.TempDir()}
	_, err := l.GetPluginStructure("pluginTestA")
	require.Error(t, err)
}
