package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "development")
	setEnv(t, "COMMISSION_RATE_PERCENT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultCommissionRate, cfg.CommissionRatePercent)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
}

func TestLoad_CustomCommissionRate(t *testing.T) {
	setEnv(t, "ENV", "development")
	setEnv(t, "COMMISSION_RATE_PERCENT", "20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.CommissionRatePercent)
}

func TestLoad_InvalidCommissionRate(t *testing.T) {
	setEnv(t, "ENV", "development")
	setEnv(t, "COMMISSION_RATE_PERCENT", "101")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "COMMISSION_RATE_PERCENT")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid development config",
			config: Config{
				Env:                   "development",
				CommissionRatePercent: 15,
			},
			wantErr: "",
		},
		{
			name: "negative commission rate",
			config: Config{
				Env:                   "development",
				CommissionRatePercent: -1,
			},
			wantErr: "COMMISSION_RATE_PERCENT",
		},
		{
			name: "commission rate above 100",
			config: Config{
				Env:                   "development",
				CommissionRatePercent: 150,
			},
			wantErr: "COMMISSION_RATE_PERCENT",
		},
		{
			name: "negative rate limit",
			config: Config{
				Env:                   "development",
				CommissionRatePercent: 15,
				RateLimitRPM:          -1,
			},
			wantErr: "RATE_LIMIT_RPM",
		},
		{
			name: "production without service key",
			config: Config{
				Env:                   "production",
				CommissionRatePercent: 15,
				AdminSecret:           "adm",
			},
			wantErr: "SERVICE_KEY is required",
		},
		{
			name: "production without admin secret",
			config: Config{
				Env:                   "production",
				CommissionRatePercent: 15,
				ServiceKey:            "svc",
			},
			wantErr: "ADMIN_SECRET is required",
		},
		{
			name: "complete production config",
			config: Config{
				Env:                   "production",
				CommissionRatePercent: 15,
				ServiceKey:            "svc",
				AdminSecret:           "adm",
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}
