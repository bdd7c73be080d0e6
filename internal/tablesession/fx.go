package tablesession

import (
	"github.com/smallbiznis/tabledesk/internal/tablesession/repository"
	"github.com/smallbiznis/tabledesk/internal/tablesession/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tablesession.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
