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

// Package boerr defines the typed error kinds the bolt dispatch core
// distinguishes from one another, following the normalized-error pattern
// used throughout the pingcap/errors ecosystem: each kind is declared once
// at package scope and instantiated per occurrence with GenWithStackByArgs,
// so callers can compare kinds with Is rather than string-matching messages.
package boerr

import (
	"github.com/pingcap/errors"
)

var (
	// ErrDuplicateName is returned when a caller registers a name
	// (message or topic) that must be unique but already exists.
	ErrDuplicateName = errors.Normalize(
		"duplicate name: %s",
		errors.RFCCodeText("BOLT:ErrDuplicateName"),
	)

	// ErrUnknownMessage is returned when a message name has no
	// registered schema.
	ErrUnknownMessage = errors.Normalize(
		"unknown message: %s",
		errors.RFCCodeText("BOLT:ErrUnknownMessage"),
	)

	// ErrUnknownTask is returned when a task id is not present in the
	// task queue.
	ErrUnknownTask = errors.Normalize(
		"unknown task: %s",
		errors.RFCCodeText("BOLT:ErrUnknownTask"),
	)

	// ErrUnknownPlugin is returned when a plugin name cannot be resolved
	// by the loader.
	ErrUnknownPlugin = errors.Normalize(
		"unknown plugin: %s",
		errors.RFCCodeText("BOLT:ErrUnknownPlugin"),
	)

	// ErrUnknownTopic is returned when an operation is attempted against
	// a topic the registry has never seen.
	ErrUnknownTopic = errors.Normalize(
		"unknown topic: %s",
		errors.RFCCodeText("BOLT:ErrUnknownTopic"),
	)

	// ErrParamMismatch is returned when sendMessage is given a
	// parameter key absent from the target schema.
	ErrParamMismatch = errors.Normalize(
		"param %q not present in schema %q",
		errors.RFCCodeText("BOLT:ErrParamMismatch"),
	)

	// ErrDispatchFailed wraps a transport-level send failure, naming the
	// topic whose send failed.
	ErrDispatchFailed = errors.Normalize(
		"dispatch failed for topic %q",
		errors.RFCCodeText("BOLT:ErrDispatchFailed"),
	)

	// ErrTopicBusy is returned when removeTopic is called on a
	// non-empty topic without force.
	ErrTopicBusy = errors.Normalize(
		"topic %q is busy: %d client(s) still registered",
		errors.RFCCodeText("BOLT:ErrTopicBusy"),
	)

	// ErrMalformedFrame is returned when a handshake or inbound frame
	// fails structural parsing.
	ErrMalformedFrame = errors.Normalize(
		"malformed frame: %s",
		errors.RFCCodeText("BOLT:ErrMalformedFrame"),
	)
)

// Is reports whether err was produced by one of the normalized kinds above,
// walking the cause chain the way errors.Cause does.
func Is(err error, kind *errors.Error) bool {
	if err == nil {
		return false
	}
	return kind.Equal(err)
}

// WrapError instantiates kind with args and attaches cause as the
// underlying error, mirroring cerror.WrapError in pkg/p2p/server.go's
// sibling packages.
func WrapError(kind *errors.Error, cause error, args ...interface{}) error {
	if cause == nil {
		return kind.GenWithStackByArgs(args...)
	}
	return kind.Wrap(cause).GenWithStackByArgs(args...)
}
