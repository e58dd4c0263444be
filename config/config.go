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

package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT                = "5001"
	DEFAULT_APP_ID              = "default-app-id"
	DEFAULT_ACCOUNT_ID          = "Allmer Bank"
	DEFAULT_DEPOSIT_AMOUNT      = "5.00"
	DEFAULT_DEPOSIT_DESCRIPTION = "Quick Deposit"
	DEFAULT_DEPOSIT_TIMEOUT_SEC = 10
	DEFAULT_AUTH_MAX_ELAPSED    = 60
	ledgerPathFormat            = "artifacts/%s/public/data/ledger_entries"
)

// Supported document store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"LEDGERSYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LEDGERSYNC_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"LEDGERSYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Driver   string `json:"driver" envconfig:"LEDGERSYNC_DATA_SOURCE_DRIVER"`
	Dns      string `json:"dns" envconfig:"LEDGERSYNC_DATA_SOURCE_DNS"`
	Database string `json:"database" envconfig:"LEDGERSYNC_DATA_SOURCE_DATABASE"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"LEDGERSYNC_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"LEDGERSYNC_REDIS_SKIP_TLS_VERIFY"`
}

type AuthConfig struct {
	InitialToken  string `json:"initial_token" envconfig:"LEDGERSYNC_AUTH_INITIAL_TOKEN"`
	TokenSecret   string `json:"token_secret" envconfig:"LEDGERSYNC_AUTH_TOKEN_SECRET"`
	MaxElapsedSec int    `json:"max_elapsed_sec" envconfig:"LEDGERSYNC_AUTH_MAX_ELAPSED_SEC"`
}

type DepositConfig struct {
	Amount      string `json:"amount" envconfig:"LEDGERSYNC_DEPOSIT_AMOUNT"`
	Description string `json:"description" envconfig:"LEDGERSYNC_DEPOSIT_DESCRIPTION"`
	TimeoutSec  int    `json:"timeout_sec" envconfig:"LEDGERSYNC_DEPOSIT_TIMEOUT_SEC"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LEDGERSYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LEDGERSYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LEDGERSYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type WebhookConfig struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"LEDGERSYNC_PROJECT_NAME"`
	AppID           string           `json:"app_id" envconfig:"LEDGERSYNC_APP_ID"`
	AccountID       string           `json:"account_id" envconfig:"LEDGERSYNC_ACCOUNT_ID"`
	LedgerPath      string           `json:"ledger_path" envconfig:"LEDGERSYNC_LEDGER_PATH"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"LEDGERSYNC_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Auth            AuthConfig       `json:"auth"`
	Deposit         DepositConfig    `json:"deposit"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return errors.Wrapf(err, "decoding %s", file)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("ledgersync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called ledgersync.json with your config ❌")
	}
	return c, nil
}

// DepositAmount parses the configured quick deposit amount.
func (cnf *Configuration) DepositAmount() decimal.Decimal {
	amount, err := decimal.NewFromString(cnf.Deposit.Amount)
	if err != nil {
		return decimal.RequireFromString(DEFAULT_DEPOSIT_AMOUNT)
	}
	return amount
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Ledger Sync"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.AppID = strings.TrimSpace(cnf.AppID)
	cnf.AccountID = strings.TrimSpace(cnf.AccountID)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Driver = strings.ToLower(strings.TrimSpace(cnf.DataSource.Driver))
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.AppID == "" {
		cnf.AppID = DEFAULT_APP_ID
	}
	if cnf.AccountID == "" {
		cnf.AccountID = DEFAULT_ACCOUNT_ID
	}
	if cnf.LedgerPath == "" {
		cnf.LedgerPath = fmt.Sprintf(ledgerPathFormat, cnf.AppID)
	}

	if cnf.DataSource.Driver == "" {
		log.Printf("Warning: Data source driver not specified. Using %s store.", DriverMemory)
		cnf.DataSource.Driver = DriverMemory
	}

	switch cnf.DataSource.Driver {
	case DriverMemory:
	case DriverRedis:
		if cnf.Redis.Dns == "" {
			log.Println("Error: Redis DNS is empty. It's required for the redis driver.")
			return errors.New("redis DNS is required")
		}
	case DriverPostgres, DriverMongo:
		if cnf.DataSource.Dns == "" {
			log.Println("Error: Data source DNS is empty. It's a required field.")
			return errors.New("data source DNS is required")
		}
		if cnf.DataSource.Driver == DriverMongo && cnf.DataSource.Database == "" {
			cnf.DataSource.Database = "ledgersync"
		}
	default:
		return errors.Errorf("unsupported data source driver %q", cnf.DataSource.Driver)
	}

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Deposit.Amount == "" {
		cnf.Deposit.Amount = DEFAULT_DEPOSIT_AMOUNT
	}
	amount, err := decimal.NewFromString(cnf.Deposit.Amount)
	if err != nil || !amount.IsPositive() {
		return errors.Errorf("deposit amount %q must be a positive number", cnf.Deposit.Amount)
	}
	if cnf.Deposit.Description == "" {
		cnf.Deposit.Description = DEFAULT_DEPOSIT_DESCRIPTION
	}
	if cnf.Deposit.TimeoutSec <= 0 {
		cnf.Deposit.TimeoutSec = DEFAULT_DEPOSIT_TIMEOUT_SEC
	}

	if cnf.Auth.MaxElapsedSec <= 0 {
		cnf.Auth.MaxElapsedSec = DEFAULT_AUTH_MAX_ELAPSED
	}
	if cnf.Auth.InitialToken != "" && cnf.Auth.TokenSecret == "" {
		return errors.New("auth token secret is required when an initial token is set")
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes. Defaults are
// applied so tests only spell out what they care about.
func MockConfig(mockConfig *Configuration) {
	if err := mockConfig.validateAndAddDefaults(); err != nil {
		logrus.Warnf("mock config: %v", err)
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
