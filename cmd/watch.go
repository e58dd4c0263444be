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
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/ledgersync/model"
)

// watchCommands prints the account's ledger every time its view changes.
func watchCommands(app *syncInstance) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "follow an account's ledger and running balance",
		Run: func(cmd *cobra.Command, args []string) {
			if accountID == "" {
				accountID = app.cnf.AccountID
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			views := make(chan model.LedgerView, 16)
			agg := app.engine.NewAggregator()
			defer agg.Close()

			agg.Subscribe(accountID, func(view model.LedgerView) {
				select {
				case views <- view:
				case <-ctx.Done():
				}
			})

			for {
				select {
				case <-ctx.Done():
					return
				case view := <-views:
					fmt.Fprintf(os.Stdout, "\n%s ledger\n", view.AccountID)
					if err := renderView(os.Stdout, view); err != nil {
						logrus.WithError(err).Error("rendering ledger")
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account to follow (defaults to the configured account_id)")
	return cmd
}
