package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/config"
	"github.com/citeflex/citeledger/internal/logger"
	"github.com/citeflex/citeledger/internal/migration"
	"github.com/citeflex/citeledger/internal/observability/metrics"
	"github.com/citeflex/citeledger/internal/seed"
	"github.com/citeflex/citeledger/internal/server"
	"github.com/citeflex/citeledger/pkg/db"
	"github.com/citeflex/citeledger/pkg/telemetry"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		telemetry.Module,
		migration.Module,
		seed.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
