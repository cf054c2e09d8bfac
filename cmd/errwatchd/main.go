/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command errwatchd runs the errwatch daemon: load config, assemble the
// adapter set, run the Scheduler until an OS signal cancels it
// (SPEC_FULL.md §6.1).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/triagectl/errwatch/internal/webhook"
	"github.com/triagectl/errwatch/pkg/core/config"
	"github.com/triagectl/errwatch/pkg/errwatch"
)

func main() {
	configPath := flag.String("config", "errwatch.yaml", "path to the daemon's YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "errwatchd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := errwatch.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	watcher, err := config.Watch(configPath, func(*config.Config) {})
	if err == nil {
		defer watcher.Close()
	}

	if cfg.Webhook.Enabled {
		server := &http.Server{Addr: ":" + cfg.Webhook.Port, Handler: webhook.NewRouter(app)}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintln(os.Stderr, "errwatchd: webhook server exited:", err)
			}
		}()
		go func() {
			<-ctx.Done()
			server.Shutdown(context.Background())
		}()
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
