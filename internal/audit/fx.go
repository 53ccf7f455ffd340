package audit

import (
	"github.com/citeflex/citeledger/internal/audit/repository"
	"github.com/citeflex/citeledger/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
