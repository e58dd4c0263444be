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
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// depositCommands records a deposit. Without an amount it records the
// configured quick deposit.
func depositCommands(app *syncInstance) *cobra.Command {
	var (
		accountID   string
		description string
		userID      string
		wait        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "deposit [amount]",
		Short: "record a deposit on an account ledger",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if accountID == "" {
				accountID = app.cnf.AccountID
			}

			ctx, cancel := context.WithTimeout(context.Background(), wait)
			defer cancel()
			if _, err := app.engine.WaitForIdentity(ctx); err != nil {
				log.Fatalf("Error signing in: %v", err)
			}

			deposits := app.engine.Deposits()
			if len(args) == 0 {
				res, err := deposits.QuickDeposit(ctx, accountID)
				if err != nil {
					log.Fatalf("Error recording deposit: %v", err)
				}
				fmt.Printf("Recorded quick deposit %s on %s\n", res.ID, accountID)
				return
			}

			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				log.Fatalf("Invalid amount %q: %v", args[0], err)
			}
			if description == "" {
				description = app.cnf.Deposit.Description
			}

			res, err := deposits.RecordDeposit(ctx, accountID, amount, description, userID)
			if err != nil {
				log.Fatalf("Error recording deposit: %v", err)
			}
			fmt.Printf("Recorded deposit %s of %s on %s\n", res.ID, amount.StringFixed(2), accountID)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account to credit (defaults to the configured account_id)")
	cmd.Flags().StringVar(&description, "description", "", "entry description")
	cmd.Flags().StringVar(&userID, "user", "", "writer id recorded on the entry (defaults to the signed in identity)")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for sign-in and the write")
	return cmd
}
