package main

import (
	_ "time/tzdata"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/migration"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/scheduler"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/server"
	"github.com/benjask5360/tuckandtaleMVP-sub002/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and every domain behind it
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
