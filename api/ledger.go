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
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/blnkfinance/ledgersync"
	model2 "github.com/blnkfinance/ledgersync/api/model"
	"github.com/blnkfinance/ledgersync/internal/apierror"
	"github.com/blnkfinance/ledgersync/model"
)

// GetLedger returns the account's ledger view once it has settled. A view
// still loading when the wait runs out is returned with 202 Accepted, and a
// failed subscription with 503 carrying the last known view.
func (a Api) GetLedger(c *gin.Context) {
	accountID, passed := c.Params.Get("account_id")
	if !passed || accountID == "" {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "account_id is required. pass it in the route /ledgers/:account_id", nil))
		return
	}
	a.respondWithView(c, accountID)
}

// GetDefaultLedger serves the configured account.
func (a Api) GetDefaultLedger(c *gin.Context) {
	a.respondWithView(c, a.engine.Config().AccountID)
}

func (a Api) respondWithView(c *gin.Context, accountID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.viewTimeout)
	defer cancel()

	f, release := a.feeds.acquire(accountID)
	defer release()

	view := f.settled(ctx)
	switch view.Status {
	case model.StatusError:
		// the stale view travels in details so clients can keep showing it
		apiErr := toAPIError(&ledgersync.SubscriptionError{AccountID: accountID, Err: errors.New(view.Reason)})
		apiErr.Details = model2.ToLedgerResponse(view)
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
	case model.StatusLoading:
		c.JSON(http.StatusAccepted, model2.ToLedgerResponse(view))
	default:
		c.JSON(http.StatusOK, model2.ToLedgerResponse(view))
	}
}

// StreamLedger pushes the account's view as server-sent events, starting with
// the current one. The subscription lives as long as at least one stream does.
func (a Api) StreamLedger(c *gin.Context) {
	accountID := c.Param("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "account_id is required", nil))
		return
	}

	f, release := a.feeds.acquire(accountID)
	defer release()

	view, changed := f.current()
	c.Header("Cache-Control", "no-cache")
	c.SSEvent("ledger", model2.ToLedgerResponse(view))
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-changed:
			view, changed = f.current()
			c.SSEvent("ledger", model2.ToLedgerResponse(view))
			return true
		}
	})
}
