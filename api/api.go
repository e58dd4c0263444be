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
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/ledgersync"
	"github.com/blnkfinance/ledgersync/api/middleware"
	"github.com/blnkfinance/ledgersync/internal/metrics"
)

const defaultViewTimeout = 5 * time.Second

type Api struct {
	engine      *ledgersync.LedgerSync
	feeds       *feeds
	router      *gin.Engine
	viewTimeout time.Duration
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/ledgers/:account_id", a.GetLedger)
	router.GET("/ledgers/:account_id/stream", a.StreamLedger)
	router.POST("/ledgers/:account_id/deposits", a.RecordDeposit)
	router.POST("/ledgers/:account_id/quick-deposit", a.QuickDeposit)

	router.GET("/ledger", a.GetDefaultLedger)
	router.GET("/identity", a.GetIdentity)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	return a.router
}

func NewAPI(l *ledgersync.LedgerSync) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf := l.Config()

	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{
		engine:      l,
		feeds:       newFeeds(l.NewAggregator()),
		router:      r,
		viewTimeout: defaultViewTimeout,
	}
}

// Close cancels every ledger subscription held by the API.
func (a Api) Close() {
	a.feeds.close()
}
