package observability

import (
	"strings"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
)

// Config is the slice of application config the telemetry stack reads.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "story-entitlements"
	}

	t := cfg.Telemetry
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.TrimSpace(t.LogLevel),
		LogFormat:            strings.TrimSpace(t.LogFormat),
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(t.OtlpEndpoint),
		OtelExporterProtocol: strings.TrimSpace(t.OtlpProtocol),
		OtelSamplingRatio:    t.SamplingRatio,
	}
}

// Debug turns on verbose request logging and stack traces.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
