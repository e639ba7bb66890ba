package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// Config holds credentials for every supported gateway plus the one used
// for new checkouts.
type Config struct {
	Active        string
	MercadoPago   MercadoPagoConfig
	Asaas         AsaasConfig
	PixExpiration time.Duration
}

// ConfigSource yields the current gateway configuration, usually a TTL
// snapshot of runtime settings.
type ConfigSource interface {
	PaymentConfig(ctx context.Context) (Config, error)
}

// StaticConfig is a ConfigSource that never changes.
type StaticConfig Config

func (s StaticConfig) PaymentConfig(context.Context) (Config, error) {
	return Config(s), nil
}

// Registry builds both gateway adapters from configuration and rebuilds
// them when the configuration changes. Checkout uses the active gateway;
// webhooks resolve the gateway named in their path, so charges created
// before an operator switched gateways still reconcile.
type Registry struct {
	source     ConfigSource
	httpClient *http.Client

	mu       sync.Mutex
	cfg      Config
	built    bool
	adapters map[string]Adapter
}

func NewRegistry(source ConfigSource, httpClient *http.Client) *Registry {
	return &Registry{source: source, httpClient: httpClient}
}

func (r *Registry) current(ctx context.Context) (Config, map[string]Adapter, error) {
	cfg, err := r.source.PaymentConfig(ctx)
	if err != nil {
		return Config{}, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.built || cfg != r.cfg {
		r.adapters = map[string]Adapter{
			models.GatewayMercadoPago: NewMercadoPagoClient(cfg.MercadoPago, r.httpClient),
			models.GatewayAsaas:       NewAsaasClient(cfg.Asaas, r.httpClient),
		}
		r.cfg = cfg
		r.built = true
	}
	return r.cfg, r.adapters, nil
}

// Active returns the gateway new charges are created on and the configured PIX expiration.
func (r *Registry) Active(ctx context.Context) (Adapter, time.Duration, error) {
	cfg, adapters, err := r.current(ctx)
	if err != nil {
		return nil, 0, err
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Active))
	if name == "" {
		name = models.GatewayMercadoPago
	}
	a, ok := adapters[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownGateway, cfg.Active)
	}
	return a, cfg.PixExpiration, nil
}

// Get returns the adapter for a gateway name.
func (r *Registry) Get(ctx context.Context, name string) (Adapter, error) {
	_, adapters, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	return a, nil
}
