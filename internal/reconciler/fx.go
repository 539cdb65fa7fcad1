package reconciler

import (
	"go.uber.org/fx"

	"github.com/stackbill/stackbill/internal/reconciler/repository"
	"github.com/stackbill/stackbill/internal/reconciler/service"
)

var Module = fx.Module("reconciler.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
