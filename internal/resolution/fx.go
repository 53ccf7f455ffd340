package resolution

import (
	"go.uber.org/fx"

	"github.com/citeflex/citeledger/internal/resolution/service"
)

var Module = fx.Module("resolution",
	fx.Provide(service.NewService),
)
