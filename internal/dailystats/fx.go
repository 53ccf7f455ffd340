package dailystats

import (
	"go.uber.org/fx"

	"github.com/citeflex/citeledger/internal/dailystats/service"
)

var Module = fx.Module("dailystats",
	fx.Provide(service.NewService),
)
