package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/config"
	"github.com/smallbiznis/tabledesk/internal/migration"
	"github.com/smallbiznis/tabledesk/internal/observability"
	"github.com/smallbiznis/tabledesk/internal/scheduler"
	"github.com/smallbiznis/tabledesk/internal/server"
	"github.com/smallbiznis/tabledesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP API, domain services and the realtime feed
		server.Module,

		// Paid-flag repair sweep
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
