// Package credentials gives typed access to the credential record kept in
// the key/value store: endpoint, display preferences, option flags and the
// session token with its issue time.
package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"github.com/tblumenau/voodoo-ss-extension/internal/storage"
	"go.uber.org/zap"
)

// DefaultValidity is how long a session token is trusted after login.
const DefaultValidity = 240 * time.Hour

// Manager reads and writes the credential record. It holds no state of its
// own; every call goes to the store.
type Manager struct {
	store    storage.Store
	validity time.Duration
	sealer   *Sealer
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithValidity overrides DefaultValidity. Zero disables expiry.
func WithValidity(d time.Duration) Option {
	return func(m *Manager) { m.validity = d }
}

// WithSealer encrypts the token at rest.
func WithSealer(s *Sealer) Option {
	return func(m *Manager) { m.sealer = s }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a Manager over store.
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		validity: DefaultValidity,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the underlying medium for components that keep their own
// keys in it (the log sink).
func (m *Manager) Store() storage.Store {
	return m.store
}

// Load reads the full record. An expired token is cleared from the store
// and reported as absent.
func (m *Manager) Load(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	fields := []struct {
		key string
		dst interface{}
	}{
		{models.KeyEndpoint, &s.Endpoint},
		{models.KeyName, &s.Name},
		{models.KeyPickword, &s.Pickword},
		{models.KeyColor, &s.Color},
		{models.KeySeconds, &s.Seconds},
		{models.KeyAPIKeyIssuedAt, &s.APIKeyIssuedAt},
		{models.KeyMinimalMode, &s.MinimalMode},
		{models.KeyAutoSubmit, &s.AutoSubmit},
		{models.KeyAddOrder, &s.AddOrder},
		{models.KeyAddShipment, &s.AddShipment},
		{models.KeyAddUPC, &s.AddUPC},
		{models.KeyAddSkuBarcode, &s.AddSkuBarcode},
		{models.KeyAddProductName, &s.AddProductName},
		{models.KeyBeep, &s.Beep},
	}
	for _, f := range fields {
		if _, err := m.store.Get(ctx, f.key, f.dst); err != nil {
			return s, fmt.Errorf("loading %s: %w", f.key, err)
		}
	}

	token, err := m.loadToken(ctx)
	if err != nil {
		return s, err
	}
	s.APIKey = token

	if s.TokenExpired(m.now(), m.validity) {
		m.log.Info("session token expired", zap.Time("issuedAt", s.APIKeyIssuedAt))
		if err := m.ClearToken(ctx); err != nil {
			return s, err
		}
		s.APIKey = ""
		s.APIKeyIssuedAt = time.Time{}
	}
	return s, nil
}

// Token returns the session token, or "" when logged out or expired.
func (m *Manager) Token(ctx context.Context) (string, error) {
	s, err := m.Load(ctx)
	if err != nil {
		return "", err
	}
	return s.APIKey, nil
}

func (m *Manager) loadToken(ctx context.Context) (string, error) {
	var stored string
	if _, err := m.store.Get(ctx, models.KeyAPIKey, &stored); err != nil {
		return "", fmt.Errorf("loading %s: %w", models.KeyAPIKey, err)
	}
	if stored == "" || m.sealer == nil {
		return stored, nil
	}
	token, err := m.sealer.Open(stored)
	if err != nil {
		// A token written before sealing was enabled, or under another
		// secret. Forcing a new login is the only safe reading.
		m.log.Warn("stored session token unreadable", zap.Error(err))
		return "", nil
	}
	return token, nil
}

// SaveOptions writes everything except the session token.
func (m *Manager) SaveOptions(ctx context.Context, s models.Settings) error {
	return m.store.Set(ctx, map[string]interface{}{
		models.KeyEndpoint:       s.Endpoint,
		models.KeyName:           s.Name,
		models.KeyPickword:       s.Pickword,
		models.KeyColor:          s.Color,
		models.KeySeconds:        s.Seconds,
		models.KeyMinimalMode:    s.MinimalMode,
		models.KeyAutoSubmit:     s.AutoSubmit,
		models.KeyAddOrder:       s.AddOrder,
		models.KeyAddShipment:    s.AddShipment,
		models.KeyAddUPC:         s.AddUPC,
		models.KeyAddSkuBarcode:  s.AddSkuBarcode,
		models.KeyAddProductName: s.AddProductName,
		models.KeyBeep:           s.Beep,
	})
}

// SaveToken replaces the session token. The previous token, if any, is
// overwritten in the same write as its issue time.
func (m *Manager) SaveToken(ctx context.Context, token string, issuedAt time.Time) error {
	stored := token
	if m.sealer != nil {
		sealed, err := m.sealer.Seal(token)
		if err != nil {
			return fmt.Errorf("sealing token: %w", err)
		}
		stored = sealed
	}
	return m.store.Set(ctx, map[string]interface{}{
		models.KeyAPIKey:         stored,
		models.KeyAPIKeyIssuedAt: issuedAt,
	})
}

// ClearToken logs out.
func (m *Manager) ClearToken(ctx context.Context) error {
	return m.store.Remove(ctx, models.KeyAPIKey, models.KeyAPIKeyIssuedAt)
}
