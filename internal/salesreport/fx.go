package salesreport

import (
	"github.com/smallbiznis/tabledesk/internal/salesreport/service"
	"go.uber.org/fx"
)

var Module = fx.Module("salesreport.service",
	fx.Provide(service.NewService),
)
