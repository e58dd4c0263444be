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
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/blnkfinance/ledgersync"
	"github.com/blnkfinance/ledgersync/internal/apierror"
)

func toAPIError(err error) apierror.APIError {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var (
		writeErr *ledgersync.WriteError
		subErr   *ledgersync.SubscriptionError
	)
	switch {
	case errors.Is(err, ledgersync.ErrNotAuthenticated):
		return apierror.NewAPIError(apierror.ErrNotAuthenticated, "identity not established yet, retry shortly", nil)
	case errors.Is(err, ledgersync.ErrInvalidAmount), errors.Is(err, ledgersync.ErrInvalidAccount):
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	case errors.As(err, &writeErr):
		return apierror.NewAPIError(apierror.ErrWriteFailed, "the ledger rejected the write", writeErr.Err.Error())
	case errors.As(err, &subErr):
		return apierror.NewAPIError(apierror.ErrSubscriptionFailed, "ledger subscription failed, showing the last known state", subErr.Err.Error())
	default:
		return apierror.NewAPIError(apierror.ErrInternalServer, "unexpected error", err.Error())
	}
}

func respondWithError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
}
