package entitlement

import (
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(service.NewService),
)
