package tier

import (
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/cache"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/repository"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewTierCache),
	fx.Provide(service.NewService),
)
