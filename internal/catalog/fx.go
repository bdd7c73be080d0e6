package catalog

import (
	"github.com/smallbiznis/tabledesk/internal/cache"
	"github.com/smallbiznis/tabledesk/internal/catalog/repository"
	"github.com/smallbiznis/tabledesk/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewRestaurantCache),
	fx.Provide(service.New),
)
