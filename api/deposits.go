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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/blnkfinance/ledgersync/api/model"
	"github.com/blnkfinance/ledgersync/internal/apierror"
)

func (a Api) RecordDeposit(c *gin.Context) {
	accountID := c.Param("account_id")

	var newDeposit model2.RecordDeposit
	if err := c.ShouldBindJSON(&newDeposit); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid deposit payload", err.Error()))
		return
	}

	if err := newDeposit.ValidateRecordDeposit(); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil))
		return
	}

	resp, err := a.engine.Deposits().RecordDeposit(c.Request.Context(), accountID, newDeposit.ParsedAmount(), newDeposit.Description, newDeposit.UserID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) QuickDeposit(c *gin.Context) {
	resp, err := a.engine.Deposits().QuickDeposit(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
