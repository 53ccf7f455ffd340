package apicall

import (
	"go.uber.org/fx"

	"github.com/citeflex/citeledger/internal/apicall/service"
)

var Module = fx.Module("apicall",
	fx.Provide(service.NewService),
)
