// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tensorviz/pkg/config"
	"github.com/AleutianAI/tensorviz/pkg/logging"
	"github.com/AleutianAI/tensorviz/services/sync/condition"
	"github.com/AleutianAI/tensorviz/services/sync/observer"
	"github.com/AleutianAI/tensorviz/services/sync/session"
	"github.com/AleutianAI/tensorviz/services/sync/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect to a model process and mirror its state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func runWatch(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if endpoint != "" {
		cfg.Session.Endpoint = endpoint
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "tensorviz",
	})
	defer logger.Close()

	stores := observer.Stores{
		Tensors:     store.NewTensorStore(nil),
		Metrics:     store.NewMetricStore(cfg.Retention.MetricCapacity),
		Breakpoints: store.NewBreakpointStore(condition.New()),
	}

	sess := session.New(session.Config{
		URL:         cfg.Session.Endpoint,
		BackoffBase: cfg.Session.BackoffBase.Std(),
		BackoffCap:  cfg.Session.BackoffCap.Std(),
		MaxAttempts: cfg.Session.MaxAttempts,
		OnStatus: func(st session.Status) {
			logger.Debug("session status", "status", string(st))
		},
	}, session.NewWebsocketDialer(), logger)

	obs := observer.New(stores, logger)
	unbind := obs.Bind(sess)
	defer unbind()

	sweeper := store.NewSweeper(store.SweeperConfig{
		TensorInterval:     cfg.Retention.TensorSweepInterval.Std(),
		MetricInterval:     cfg.Retention.MetricSweepInterval.Std(),
		BreakpointInterval: cfg.Retention.BreakpointSweepInterval.Std(),
		TensorMaxAge:       cfg.Retention.TensorMaxAge.Std(),
		MetricMaxAge:       cfg.Retention.MetricMaxAge.Std(),
		BreakpointMaxAge:   cfg.Retention.BreakpointMaxAge.Std(),
	}, stores.Tensors, stores.Metrics, stores.Breakpoints)

	watcher, err := config.NewWatcher(configPath, logger.Slog())
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("watching model process", "endpoint", cfg.Session.Endpoint)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// Session exit for any reason (signal, manual close, terminal
		// disconnect) winds down the whole process.
		defer cancel()
		return sess.Run(gctx)
	})
	g.Go(func() error {
		err := sweeper.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// Config edits take effect on the next connection; session and
		// sweeper keep running with their current settings.
		for {
			select {
			case <-gctx.Done():
				return nil
			case newCfg, ok := <-watcher.Updates():
				if !ok {
					return nil
				}
				logger.Info("config updated",
					"endpoint", newCfg.Session.Endpoint,
					"log_level", newCfg.LogLevel)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		// SIGINT/SIGTERM is a manual close: sticky, no reconnect.
		return sess.Close()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
