package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordercast/internal/auth"
	"github.com/smallbiznis/ordercast/internal/clock"
	"github.com/smallbiznis/ordercast/internal/config"
	"github.com/smallbiznis/ordercast/internal/forecast"
	"github.com/smallbiznis/ordercast/internal/migration"
	"github.com/smallbiznis/ordercast/internal/observability"
	"github.com/smallbiznis/ordercast/internal/order"
	"github.com/smallbiznis/ordercast/internal/scheduler"
	"github.com/smallbiznis/ordercast/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Domain services required by the scheduler
		auth.Module,
		order.Module,
		forecast.Module,

		// No server module: the standalone binary always runs the loop,
		// regardless of SCHEDULER_ENABLED.
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Invoke(StartScheduler),
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

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go s.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
