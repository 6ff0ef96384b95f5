package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultFreeTierID = "tier_free"

// BillingConfig is the static price→tier table. Tiers are never discovered at
// runtime from the billing system.
type BillingConfig struct {
	FreeTierID string         `mapstructure:"freeTierID"`
	Prices     []PriceMapping `mapstructure:"prices"`
}

type PriceMapping struct {
	PriceID  string `mapstructure:"price_id"`
	TierID   string `mapstructure:"tier_id"`
	Interval string `mapstructure:"interval"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{FreeTierID: DefaultFreeTierID}
}

// TierForPrice returns the tier mapped to priceID.
func (c BillingConfig) TierForPrice(priceID string) (string, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return "", false
	}
	for _, p := range c.Prices {
		if p.PriceID == priceID {
			return p.TierID, true
		}
	}
	return "", false
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) (*BillingConfigHolder, error) {
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("config.billing")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/story-entitlements/config")
	v.AddConfigPath("/etc/story-entitlements")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENTITLEMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Warn("billing.yml not found, no prices are mapped")
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.freeTierID", defaults.FreeTierID)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Error("reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Error("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name), zap.Int("prices", len(updated.Prices)))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.FreeTierID) == "" {
		return errors.New("billing.freeTierID cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Prices))
	for i, p := range cfg.Prices {
		if strings.TrimSpace(p.PriceID) == "" {
			return fmt.Errorf("billing.prices[%d].price_id cannot be empty", i)
		}
		if strings.TrimSpace(p.TierID) == "" {
			return fmt.Errorf("billing.prices[%d].tier_id cannot be empty", i)
		}
		if _, dup := seen[p.PriceID]; dup {
			return fmt.Errorf("billing.prices: duplicate price_id %q", p.PriceID)
		}
		seen[p.PriceID] = struct{}{}
	}
	return nil
}
