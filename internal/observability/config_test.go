package observability

import (
	"testing"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaultsServiceName(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: " production ",
		Telemetry:   config.TelemetryConfig{LogLevel: "info", OtlpProtocol: "http"},
	})

	assert.Equal(t, "story-entitlements", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "local"}.Debug())
	assert.False(t, Config{}.Debug())
}
