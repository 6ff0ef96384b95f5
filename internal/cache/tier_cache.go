package cache

import (
	"strings"
	"time"

	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
)

const defaultTierTTL = 30 * time.Second

// TierCache keeps tier definitions hot for entitlement checks. Only the
// definitions are cached; a user's tier assignment is always read fresh.
type TierCache interface {
	GetTier(tierID string) (tierdomain.Tier, bool)
	SetTier(tier tierdomain.Tier)
	Invalidate(tierID string)
}

type tierCache struct {
	tiers Cache[string, tierdomain.Tier]
	ttl   time.Duration
}

func NewTierCache() TierCache {
	return NewTierCacheWithTTL(defaultTierTTL)
}

func NewTierCacheWithTTL(ttl time.Duration) TierCache {
	return &tierCache{
		tiers: NewTTLCache[string, tierdomain.Tier](),
		ttl:   ttl,
	}
}

func (c *tierCache) GetTier(tierID string) (tierdomain.Tier, bool) {
	return c.tiers.Get(cacheKey(tierID))
}

func (c *tierCache) SetTier(tier tierdomain.Tier) {
	if tier.ID == "" {
		return
	}
	c.tiers.Set(cacheKey(tier.ID), tier, c.ttl)
}

func (c *tierCache) Invalidate(tierID string) {
	c.tiers.Delete(cacheKey(tierID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, "|")
}
