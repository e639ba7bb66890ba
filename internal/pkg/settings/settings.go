package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
	"github.com/ManuelReschke/AgentHub/internal/pkg/pricing"
)

const (
	DefaultTTL                  = 60 * time.Second
	DefaultSignupFreeCredits    = 10
	DefaultPixExpirationMinutes = 30
)

// Snapshot is an immutable view of the runtime settings at load time.
type Snapshot struct {
	ActiveGateway        string          `validate:"required,oneof=mercadopago asaas"`
	SignupFreeCredits    decimal.Decimal `validate:"-"`
	PricingMultipliers   map[string]int  `validate:"omitempty,dive,keys,required,endkeys,gte=1,lte=1000"`
	DefaultMultiplier    int             `validate:"gte=1,lte=1000"`
	CacheDiscountRate    float64         `validate:"gt=0,lte=1"`
	PixExpirationMinutes int             `validate:"gte=1,lte=10080"`

	MercadoPagoAccessToken     string
	MercadoPagoWebhookSecret   string
	MercadoPagoNotificationURL string `validate:"omitempty,url"`
	AsaasAPIKey                string
	AsaasBaseURL               string `validate:"omitempty,url"`
	AsaasWebhookToken          string

	LoadedAt time.Time
	pricing  *pricing.Model
}

var (
	ErrUnknownSetting = errors.New("settings: unknown setting key")
	ErrInvalidSetting = errors.New("settings: invalid setting value")
)

// Source returns the stored setting values keyed by setting key.
type Source func(ctx context.Context) (map[string]string, error)

// Provider serves a settings snapshot and reloads it once the TTL expired.
// A failed reload keeps serving the previous snapshot.
type Provider struct {
	source   Source
	ttl      time.Duration
	now      func() time.Time
	validate *validator.Validate

	mu      sync.RWMutex
	current *Snapshot
	expires time.Time
}

func NewProvider(source Source, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Provider{
		source:   source,
		ttl:      ttl,
		now:      time.Now,
		validate: validator.New(),
	}
}

// NewProviderFromEnv uses SETTINGS_CACHE_TTL_SECONDS for the TTL.
func NewProviderFromEnv(source Source) *Provider {
	ttl := DefaultTTL
	if secs := env.GetEnvInt("SETTINGS_CACHE_TTL_SECONDS", 0); secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	return NewProvider(source, ttl)
}

// Snapshot returns the current settings, reloading when expired.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	p.mu.RLock()
	snap, expires := p.current, p.expires
	p.mu.RUnlock()
	if snap != nil && p.now().Before(expires) {
		return snap, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.now().Before(p.expires) {
		return p.current, nil
	}

	fresh, err := p.load(ctx)
	if err != nil {
		if p.current != nil {
			log.Warnf("[Settings] reload failed, serving previous snapshot: %v", err)
			p.expires = p.now().Add(p.ttl)
			return p.current, nil
		}
		return nil, err
	}
	p.current = fresh
	p.expires = p.now().Add(p.ttl)
	return fresh, nil
}

// Invalidate forces the next call to reload.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.expires = time.Time{}
	p.mu.Unlock()
}

// Check reports whether storing value under key keeps the settings valid.
// Unlike a reload, which skips bad values, every value must parse.
func (p *Provider) Check(ctx context.Context, key, value string) error {
	if !models.IsKnownSetting(key) {
		return ErrUnknownSetting
	}
	value = strings.TrimSpace(value)
	if err := checkType(key, value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
	}
	values, err := p.source(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	merged := make(map[string]string, len(values)+1)
	for k, v := range values {
		merged[k] = v
	}
	merged[key] = value

	snap := envDefaults()
	applyValues(&snap, merged)
	if err := p.validate.Struct(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	return nil
}

func checkType(key, value string) error {
	if value == "" {
		return nil
	}
	switch models.SettingTypeFor(key) {
	case "integer":
		_, err := strconv.Atoi(value)
		return err
	case "float":
		v, err := decimal.NewFromString(value)
		if err == nil && v.IsNegative() {
			return errors.New("must not be negative")
		}
		return err
	case "json":
		var table map[string]int
		return json.Unmarshal([]byte(value), &table)
	}
	return nil
}

func (p *Provider) load(ctx context.Context) (*Snapshot, error) {
	defaults := envDefaults()
	values, err := p.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	snap := defaults
	applyValues(&snap, values)
	if err := p.validate.Struct(&snap); err != nil {
		log.Warnf("[Settings] stored settings are invalid, using environment defaults: %v", err)
		snap = defaults
		if err := p.validate.Struct(&snap); err != nil {
			return nil, fmt.Errorf("invalid settings: %w", err)
		}
	}

	snap.pricing = pricing.New(pricing.Config{
		Multipliers:       snap.PricingMultipliers,
		DefaultMultiplier: snap.DefaultMultiplier,
		CacheDiscountRate: decimal.NewFromFloat(snap.CacheDiscountRate),
	})
	snap.LoadedAt = p.now()
	return &snap, nil
}

func envDefaults() Snapshot {
	notificationURL := env.GetEnv("MERCADOPAGO_NOTIFICATION_URL", "")
	if notificationURL == "" {
		if domain := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"); domain != "" {
			notificationURL = domain + "/webhooks/mercadopago"
		}
	}
	snap := Snapshot{
		ActiveGateway:              strings.ToLower(env.GetEnv("PAYMENT_GATEWAY", models.GatewayMercadoPago)),
		SignupFreeCredits:          decimal.NewFromInt(DefaultSignupFreeCredits),
		DefaultMultiplier:          pricing.TierStandard,
		CacheDiscountRate:          pricing.DefaultCacheDiscountRate.InexactFloat64(),
		PixExpirationMinutes:       DefaultPixExpirationMinutes,
		MercadoPagoAccessToken:     env.GetEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		MercadoPagoWebhookSecret:   env.GetEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
		MercadoPagoNotificationURL: notificationURL,
		AsaasAPIKey:                env.GetEnv("ASAAS_API_KEY", ""),
		AsaasBaseURL:               env.GetEnv("ASAAS_BASE_URL", ""),
		AsaasWebhookToken:          env.GetEnv("ASAAS_WEBHOOK_TOKEN", ""),
	}
	if raw := strings.TrimSpace(env.GetEnv("PRICING_CONFIG", "")); raw != "" {
		if cfg, err := pricing.ParseConfig([]byte(raw)); err == nil {
			snap.PricingMultipliers = cfg.Multipliers
			if cfg.DefaultMultiplier > 0 {
				snap.DefaultMultiplier = cfg.DefaultMultiplier
			}
			if cfg.CacheDiscountRate.IsPositive() {
				snap.CacheDiscountRate = cfg.CacheDiscountRate.InexactFloat64()
			}
		} else {
			log.Warnf("[Settings] invalid PRICING_CONFIG: %v", err)
		}
	}
	if v, err := decimal.NewFromString(env.GetEnv("SIGNUP_FREE_CREDITS", "")); err == nil && !v.IsNegative() {
		snap.SignupFreeCredits = v
	}
	snap.PixExpirationMinutes = env.GetEnvInt("PIX_EXPIRATION_MINUTES", snap.PixExpirationMinutes)
	return snap
}

// applyValues overlays stored values. Unparseable values are skipped.
func applyValues(snap *Snapshot, values map[string]string) {
	for key, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		switch key {
		case models.SettingActiveGateway:
			snap.ActiveGateway = strings.ToLower(value)
		case models.SettingSignupFreeCredits:
			if v, err := decimal.NewFromString(value); err == nil && !v.IsNegative() {
				snap.SignupFreeCredits = v
			} else {
				log.Warnf("[Settings] ignoring %s=%q", key, value)
			}
		case models.SettingPricingMultipliers:
			var table map[string]int
			if err := json.Unmarshal([]byte(value), &table); err == nil {
				merged := make(map[string]int, len(snap.PricingMultipliers)+len(table))
				for k, v := range snap.PricingMultipliers {
					merged[k] = v
				}
				for k, v := range table {
					merged[k] = v
				}
				snap.PricingMultipliers = merged
			} else {
				log.Warnf("[Settings] ignoring %s: %v", key, err)
			}
		case models.SettingDefaultMultiplier:
			if v, err := strconv.Atoi(value); err == nil {
				snap.DefaultMultiplier = v
			}
		case models.SettingCacheDiscountRate:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				snap.CacheDiscountRate = v
			}
		case models.SettingPixExpirationMinutes:
			if v, err := strconv.Atoi(value); err == nil {
				snap.PixExpirationMinutes = v
			}
		case models.SettingMercadoPagoAccessToken:
			snap.MercadoPagoAccessToken = value
		case models.SettingMercadoPagoWebhookKey:
			snap.MercadoPagoWebhookSecret = value
		case models.SettingAsaasAPIKey:
			snap.AsaasAPIKey = value
		case models.SettingAsaasBaseURL:
			snap.AsaasBaseURL = value
		case models.SettingAsaasWebhookToken:
			snap.AsaasWebhookToken = value
		}
	}
}

// Pricing returns the pricing model built for this snapshot.
func (s *Snapshot) Pricing() *pricing.Model {
	if s.pricing == nil {
		return pricing.New(pricing.Config{})
	}
	return s.pricing
}

// Payment converts the snapshot into gateway configuration.
func (s *Snapshot) Payment() payment.Config {
	return payment.Config{
		Active: s.ActiveGateway,
		MercadoPago: payment.MercadoPagoConfig{
			AccessToken:     s.MercadoPagoAccessToken,
			WebhookSecret:   s.MercadoPagoWebhookSecret,
			NotificationURL: s.MercadoPagoNotificationURL,
		},
		Asaas: payment.AsaasConfig{
			APIKey:       s.AsaasAPIKey,
			BaseURL:      s.AsaasBaseURL,
			WebhookToken: s.AsaasWebhookToken,
		},
		PixExpiration: time.Duration(s.PixExpirationMinutes) * time.Minute,
	}
}

// PaymentConfig implements payment.ConfigSource.
func (p *Provider) PaymentConfig(ctx context.Context) (payment.Config, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return payment.Config{}, err
	}
	return snap.Payment(), nil
}

// PricingModel returns the pricing model of the current snapshot.
func (p *Provider) PricingModel(ctx context.Context) (*pricing.Model, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Pricing(), nil
}

// SignupFreeCredits returns the credits granted to new accounts.
func (p *Provider) SignupFreeCredits(ctx context.Context) (decimal.Decimal, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.SignupFreeCredits, nil
}
