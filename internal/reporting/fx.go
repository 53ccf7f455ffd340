package reporting

import (
	"go.uber.org/fx"

	"github.com/citeflex/citeledger/internal/reporting/service"
)

var Module = fx.Module("reporting",
	fx.Provide(service.NewService),
)
