package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/migration"
	"github.com/stackbill/stackbill/internal/observability"
	"github.com/stackbill/stackbill/internal/server"
	"github.com/stackbill/stackbill/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
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
