package billingmodel

import (
	"github.com/stackbill/stackbill/internal/billingmodel/repository"
	"github.com/stackbill/stackbill/internal/billingmodel/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingmodel.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
