package classifier

import (
	"github.com/stackbill/stackbill/internal/classifier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("classifier.service",
	fx.Provide(service.New),
)
