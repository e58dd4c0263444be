package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{}
	err := cnf.validateAndAddDefaults()
	require.NoError(t, err)

	assert.Equal(t, "Ledger Sync", cnf.ProjectName)
	assert.Equal(t, DEFAULT_APP_ID, cnf.AppID)
	assert.Equal(t, DEFAULT_ACCOUNT_ID, cnf.AccountID)
	assert.Equal(t, "artifacts/default-app-id/public/data/ledger_entries", cnf.LedgerPath)
	assert.Equal(t, DriverMemory, cnf.DataSource.Driver)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, DEFAULT_DEPOSIT_DESCRIPTION, cnf.Deposit.Description)
	assert.Equal(t, "5", cnf.DepositAmount().String())
	assert.Equal(t, DEFAULT_DEPOSIT_TIMEOUT_SEC, cnf.Deposit.TimeoutSec)
	assert.NotNil(t, cnf.RateLimit.CleanupIntervalSec)
	assert.Nil(t, cnf.RateLimit.RequestsPerSecond)
}

func TestValidateAndAddDefaults_DriverRequirements(t *testing.T) {
	tests := []struct {
		name    string
		cnf     Configuration
		wantErr string
	}{
		{
			name:    "redis without dns",
			cnf:     Configuration{DataSource: DataSourceConfig{Driver: "redis"}},
			wantErr: "redis DNS is required",
		},
		{
			name:    "postgres without dns",
			cnf:     Configuration{DataSource: DataSourceConfig{Driver: "Postgres"}},
			wantErr: "data source DNS is required",
		},
		{
			name:    "unknown driver",
			cnf:     Configuration{DataSource: DataSourceConfig{Driver: "firestore"}},
			wantErr: `unsupported data source driver "firestore"`,
		},
		{
			name:    "negative deposit",
			cnf:     Configuration{Deposit: DepositConfig{Amount: "-5"}},
			wantErr: `deposit amount "-5" must be a positive number`,
		},
		{
			name:    "token without secret",
			cnf:     Configuration{Auth: AuthConfig{InitialToken: "abc"}},
			wantErr: "auth token secret is required when an initial token is set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cnf.validateAndAddDefaults()
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateAndAddDefaults_Mongo(t *testing.T) {
	cnf := Configuration{DataSource: DataSourceConfig{Driver: DriverMongo, Dns: "mongodb://localhost:27017"}}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, "ledgersync", cnf.DataSource.Database)
}

func TestValidateAndAddDefaults_RateLimit(t *testing.T) {
	rps := 10.0
	cnf := Configuration{RateLimit: RateLimitConfig{RequestsPerSecond: &rps}}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 20, *cnf.RateLimit.Burst)

	burst := 8
	cnf = Configuration{RateLimit: RateLimitConfig{Burst: &burst}}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 4.0, *cnf.RateLimit.RequestsPerSecond)
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "ledgersync.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		AppID:       "dashboard",
		DataSource: DataSourceConfig{
			Driver: DriverRedis,
		},
		Redis: RedisConfig{
			Dns: "temp-redis:6379",
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	t.Setenv("LEDGERSYNC_PROJECT_NAME", "Env Project")
	t.Setenv("LEDGERSYNC_ACCOUNT_ID", "Allmer Holdings")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	require.NoError(t, err)

	assert.Equal(t, "Env Project", loadedConfig.ProjectName)
	assert.Equal(t, "Allmer Holdings", loadedConfig.AccountID)
	assert.Equal(t, "temp-redis:6379", loadedConfig.Redis.Dns)
	assert.Equal(t, "artifacts/dashboard/public/data/ledger_entries", loadedConfig.LedgerPath)
}

func TestLoadConfigFromFile_InvalidJSON(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "ledgersync.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString("{not json")
	require.NoError(t, err)
	tmpFile.Close()

	err = loadConfigFromFile(tmpFile.Name())
	assert.Error(t, err)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{AccountID: "Test Account"})
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Test Account", cnf.AccountID)
	assert.Equal(t, DriverMemory, cnf.DataSource.Driver)
}
