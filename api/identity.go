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

	"github.com/blnkfinance/ledgersync/internal/apierror"
)

// GetIdentity reports the identity the engine signed in with.
func (a Api) GetIdentity(c *gin.Context) {
	id, ok := a.engine.Session().Identity()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, apierror.NewAPIError(apierror.ErrNotAuthenticated, "identity not established yet", nil))
		return
	}
	c.JSON(http.StatusOK, id)
}
