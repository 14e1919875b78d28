package forecast

import (
	"github.com/smallbiznis/ordercast/internal/forecast/cache"
	"github.com/smallbiznis/ordercast/internal/forecast/engine"
	"github.com/smallbiznis/ordercast/internal/forecast/repository"
	"github.com/smallbiznis/ordercast/internal/forecast/service"
	"github.com/smallbiznis/ordercast/internal/lock"
	"go.uber.org/fx"
)

var Module = fx.Module("forecast.service",
	fx.Provide(cache.NewRedisClient),
	fx.Provide(cache.NewHotCache),
	fx.Provide(lock.NewLocker),
	fx.Provide(engine.New),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
