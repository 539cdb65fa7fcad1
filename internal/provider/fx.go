package provider

import (
	"go.uber.org/fx"

	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/provider/adapters"
	"github.com/stackbill/stackbill/internal/provider/domain"
	"github.com/stackbill/stackbill/internal/provider/stripe"
)

var Module = fx.Module("provider",
	fx.Provide(NewRegistry),
	fx.Provide(NewClient),
)

func NewRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		stripe.NewFactory(),
	)
}

func NewClient(cfg config.Config, registry *adapters.Registry) (domain.Client, error) {
	return registry.NewClient(cfg.Provider.Name, domain.ClientConfig{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
	})
}
