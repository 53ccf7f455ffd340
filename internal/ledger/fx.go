package ledger

import (
	"go.uber.org/fx"

	"github.com/citeflex/citeledger/internal/ledger/service"
)

var Module = fx.Module("ledger",
	fx.Provide(service.NewService),
)
