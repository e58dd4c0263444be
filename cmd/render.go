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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/ledgersync/model"
)

const (
	dateLayout     = "2006-01-02"
	currencySuffix = "€"
)

func formatAmount(d decimal.Decimal) string {
	if !d.IsPositive() {
		return "-"
	}
	return d.StringFixed(2)
}

// renderView writes view as the Date / Desc / In / Out / Bal table.
func renderView(w io.Writer, view model.LedgerView) error {
	switch view.Status {
	case model.StatusLoading:
		_, err := fmt.Fprintf(w, "Loading ledger for %s...\n", view.AccountID)
		return err
	case model.StatusError:
		if _, err := fmt.Fprintf(w, "Access Denied. Check permissions. (%s)\n", view.Reason); err != nil {
			return err
		}
	}

	if len(view.OrderedEntries) == 0 {
		_, err := fmt.Fprintln(w, "No transactions found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tDesc\tIn\tOut\tBal\t")
	for i, entry := range view.OrderedEntries {
		date := entry.Timestamp.Local().Format(dateLayout)
		if entry.TimestampEstimated {
			date += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s%s\t\n",
			date,
			entry.Description,
			formatAmount(entry.Debit),
			formatAmount(entry.Credit),
			view.RunningBalances[i].StringFixed(2),
			currencySuffix,
		)
	}
	return tw.Flush()
}
