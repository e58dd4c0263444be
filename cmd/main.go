/*
Copyright 2024 Blnk Finance Authors.

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

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/ledgersync"
	"github.com/blnkfinance/ledgersync/config"
	"github.com/blnkfinance/ledgersync/database"
	"github.com/blnkfinance/ledgersync/internal/metrics"
	"github.com/blnkfinance/ledgersync/internal/notification"
)

// LedgerSync represents the CLI application, encapsulating the root Cobra command.
type LedgerSync struct {
	cmd *cobra.Command
}

// syncInstance holds the engine and its configuration for the subcommands.
type syncInstance struct {
	engine *ledgersync.LedgerSync
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration, opens the document store and starts the
// identity sign-in before any command runs.
func preRun(app *syncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		metrics.Init()

		engine, err := setupLedgerSync(cmd.Context(), cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		engine.Start(context.Background())

		app.engine = engine
		app.cnf = cnf
		return nil
	}
}

// setupLedgerSync connects the configured document store and builds the engine on it.
func setupLedgerSync(ctx context.Context, cfg *config.Configuration) (*ledgersync.LedgerSync, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := database.NewDocumentStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting document store: %v", err)
	}

	engine, err := ledgersync.NewLedgerSync(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("error creating ledger sync: %v", err)
	}
	return engine, nil
}

// NewCLI creates the command-line interface and registers the subcommands.
func NewCLI() *LedgerSync {
	var configFile string
	app := &syncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "ledgersync",
		Short: "Live general ledger for Allmer holdings",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./ledgersync.json", "Configuration file for ledgersync")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app.engine != nil {
			_ = app.engine.Close()
		}
	}

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(watchCommands(app))
	rootCmd.AddCommand(depositCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands())

	return &LedgerSync{cmd: rootCmd}
}

func (l LedgerSync) executeCLI() {
	if err := l.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
