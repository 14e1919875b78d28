package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordercast/internal/auth"
	"github.com/smallbiznis/ordercast/internal/clock"
	"github.com/smallbiznis/ordercast/internal/config"
	"github.com/smallbiznis/ordercast/internal/forecast"
	"github.com/smallbiznis/ordercast/internal/migration"
	"github.com/smallbiznis/ordercast/internal/observability"
	"github.com/smallbiznis/ordercast/internal/order"
	"github.com/smallbiznis/ordercast/internal/scheduler"
	"github.com/smallbiznis/ordercast/internal/server"
	"github.com/smallbiznis/ordercast/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Functional domains
		auth.Module,
		order.Module,
		forecast.Module,
		scheduler.Module,

		server.Module,
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
