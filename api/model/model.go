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
	"errors"

	"github.com/shopspring/decimal"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func positiveAmount(value interface{}) error {
	raw, _ := value.(string)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.New("must be a decimal number, e.g. 5.00")
	}
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func (d *RecordDeposit) ValidateRecordDeposit() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Amount, validation.Required, validation.By(positiveAmount)),
		validation.Field(&d.Description, validation.Required, validation.Length(1, 140)),
		validation.Field(&d.UserID, validation.Length(0, 128)),
	)
}
