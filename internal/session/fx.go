package session

import (
	"go.uber.org/fx"

	"github.com/citeflex/citeledger/internal/session/service"
)

var Module = fx.Module("session",
	fx.Provide(service.NewService),
)
