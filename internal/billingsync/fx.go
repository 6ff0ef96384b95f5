package billingsync

import (
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/repository"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/service"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("billingsync.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewGateway),
	fx.Provide(service.NewService),
)
