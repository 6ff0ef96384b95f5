package regeneration

import (
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/regeneration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("regeneration.service",
	fx.Provide(service.NewService),
)
