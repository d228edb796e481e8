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

// Command boltd is the bolt task-dispatch server process launcher: it
// loads configuration from the environment, wires the connection
// registry, socket server, message dispatcher, execution engine, and
// scheduler together, and runs until an interrupt signal is received.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bolt-server/bolt/pkg/config"
	"github.com/bolt-server/bolt/pkg/dispatcher"
	"github.com/bolt-server/bolt/pkg/engine"
	"github.com/bolt-server/bolt/pkg/logutil"
	"github.com/bolt-server/bolt/pkg/message"
	"github.com/bolt-server/bolt/pkg/plugin"
	"github.com/bolt-server/bolt/pkg/registry"
	"github.com/bolt-server/bolt/pkg/scheduler"
	"github.com/bolt-server/bolt/pkg/socketserver"
	"github.com/bolt-server/bolt/pkg/task"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("boltd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := logutil.Init(cfg); err != nil {
		return err
	}

	reg := registry.New()
	srv := socketserver.New(socketserver.Config{
		Host:    cfg.ServerHost,
		Port:    cfg.ServerPort,
		Backlog: cfg.ConnectionWaitQueue,
	}, reg)

	store := message.NewStore()
	queue := message.NewQueue()
	disp := dispatcher.New(store, queue, srv, cfg.LogMessages)

	loader := &plugin.DirLoader{Dir: cfg.PluginDir}
	if err := loader.Load(); err != nil {
		return err
	}

	tasks := task.NewQueue()
	eng := engine.New(tasks, disp, loader)

	disp.RegisterHandler(func(id message.PacketID, result message.Schema) {
		eng.OnInboundMessage(id, result)
	})
	srv.RegisterHandler(func(frame []byte) {
		if err := disp.OnInbound(frame); err != nil {
			log.Warn("failed to process inbound frame", zap.Error(err))
		}
	})

	sched := scheduler.New(cfg.TickInterval, eng)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errg, egCtx := errgroup.WithContext(ctx)
	errg.Go(func() error { return srv.ListenAndServe(egCtx) })
	errg.Go(func() error { return sched.Run(egCtx) })
	errg.Go(func() error { return eng.Run(egCtx) })

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		errg.Go(func() error {
			<-egCtx.Done()
			return metricsSrv.Close()
		})
		errg.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	return errg.Wait()
}
