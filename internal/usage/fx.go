package usage

import (
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/repository"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
