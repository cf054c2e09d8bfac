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

// Command errwatchctl is the operator CLI against a running errwatch
// store: listSignatures, showSignature, muteSignature, resolveSignature,
// retriageSignature, investigateNow, showStats (SPEC_FULL.md §6.1).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/triagectl/errwatch/pkg/core/config"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/errwatch"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "errwatchctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usageError()
	}

	flagSet := flag.NewFlagSet("errwatchctl", flag.ContinueOnError)
	configPath := flagSet.String("config", "errwatch.yaml", "path to the daemon's YAML config file")
	status := flagSet.String("status", "", "filter by status (listSignatures only)")
	reason := flagSet.String("reason", "", "reason recorded for muteSignature")
	note := flagSet.String("note", "", "note recorded for resolveSignature")
	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	app, err := errwatch.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	command := args[0]
	positional := flagSet.Args()

	switch command {
	case "listSignatures":
		var filter *model.Status
		if *status != "" {
			s := model.Status(*status)
			filter = &s
		}
		signatures, err := app.ListSignatures(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(signatures)

	case "showSignature":
		id, err := requireID(positional)
		if err != nil {
			return err
		}
		sig, err := app.ShowSignature(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(sig)

	case "muteSignature":
		id, err := requireID(positional)
		if err != nil {
			return err
		}
		return app.MuteSignature(ctx, id, *reason)

	case "resolveSignature":
		id, err := requireID(positional)
		if err != nil {
			return err
		}
		return app.ResolveSignature(ctx, id, *note)

	case "retriageSignature":
		id, err := requireID(positional)
		if err != nil {
			return err
		}
		return app.RetriageSignature(ctx, id)

	case "investigateNow":
		id, err := requireID(positional)
		if err != nil {
			return err
		}
		return app.InvestigateNow(ctx, id)

	case "showStats":
		stats, err := app.ShowStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)

	default:
		return usageError()
	}
}

func requireID(positional []string) (string, error) {
	if len(positional) != 1 {
		return "", fmt.Errorf("expected exactly one signature ID argument, got %d", len(positional))
	}
	return positional[0], nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError() error {
	return fmt.Errorf("usage: errwatchctl <listSignatures|showSignature|muteSignature|resolveSignature|retriageSignature|investigateNow|showStats> [args] [flags]")
}
