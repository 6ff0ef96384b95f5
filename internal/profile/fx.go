package profile

import (
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/repository"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
