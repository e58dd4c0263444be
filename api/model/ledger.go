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

package model

import (
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/ledgersync/model"
)

type RecordDeposit struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
}

// ParsedAmount returns the validated amount. Call ValidateRecordDeposit first.
func (d *RecordDeposit) ParsedAmount() decimal.Decimal {
	amount, _ := decimal.NewFromString(d.Amount)
	return amount
}

// LedgerResponse is a LedgerView with its closing balance spelled out.
type LedgerResponse struct {
	model.LedgerView
	Balance decimal.Decimal `json:"balance"`
}

func ToLedgerResponse(view model.LedgerView) LedgerResponse {
	return LedgerResponse{LedgerView: view, Balance: view.Balance()}
}
