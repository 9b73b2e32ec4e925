package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"github.com/tblumenau/voodoo-ss-extension/internal/testutil"
)

const testSecret = "1234567890123456789012345678901212345678901234567890123456789012"

func TestLoad_EmptyOnInstall(t *testing.T) {
	m := NewManager(testutil.NewMemoryStore())

	s, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Settings{}, s)
	assert.False(t, s.LoggedIn())
}

func TestSaveOptions_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.NewMemoryStore())

	in := models.Settings{
		Endpoint:      "https://bigblock.example.com",
		Name:          "Pat",
		Pickword:      "PICK",
		Color:         "green",
		Seconds:       20,
		MinimalMode:   true,
		AutoSubmit:    true,
		AddOrder:      true,
		AddSkuBarcode: true,
		Beep:          true,
	}
	require.NoError(t, m.SaveOptions(ctx, in))

	out, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveOptions_KeepsToken(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.NewMemoryStore())

	require.NoError(t, m.SaveToken(ctx, "tok-1", time.Now()))
	require.NoError(t, m.SaveOptions(ctx, models.Settings{Name: "Pat"}))

	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", s.APIKey)
}

func TestToken_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	store := testutil.NewMemoryStore()
	m := NewManager(store, WithClock(func() time.Time { return now }))

	require.NoError(t, m.SaveToken(ctx, "tok-1", now.Add(-time.Hour)))
	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", s.APIKey)

	// Only one token is ever active: a new login replaces it.
	require.NoError(t, m.SaveToken(ctx, "tok-2", now))
	s, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", s.APIKey)

	token, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)

	require.NoError(t, m.ClearToken(ctx))
	s, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.APIKey)
	assert.False(t, store.Has(models.KeyAPIKey))
}

func TestToken_ExpiresAfterValidity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC)
	store := testutil.NewMemoryStore()
	m := NewManager(store, WithClock(func() time.Time { return now }))

	require.NoError(t, m.SaveToken(ctx, "old", now.Add(-DefaultValidity-time.Minute)))

	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.APIKey)
	assert.True(t, s.APIKeyIssuedAt.IsZero())
	assert.False(t, store.Has(models.KeyAPIKey), "expired token should be removed")

	token, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestToken_ZeroValidityNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewManager(testutil.NewMemoryStore(), WithValidity(0), WithClock(func() time.Time { return now }))

	require.NoError(t, m.SaveToken(ctx, "tok", now.Add(-10000*time.Hour)))
	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", s.APIKey)
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testSecret)
	require.NoError(t, err)

	sealed, err := sealer.Seal("api-key-value")
	require.NoError(t, err)
	assert.NotEqual(t, "api-key-value", sealed)

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "api-key-value", opened)
}

func TestSealer_StoredTokenIsEncrypted(t *testing.T) {
	ctx := context.Background()
	sealer, err := NewSealer(testSecret)
	require.NoError(t, err)
	store := testutil.NewMemoryStore()
	m := NewManager(store, WithSealer(sealer))

	require.NoError(t, m.SaveToken(ctx, "secret-token", time.Now()))

	var raw string
	_, err = store.Get(ctx, models.KeyAPIKey, &raw)
	require.NoError(t, err)
	assert.NotEqual(t, "secret-token", raw)

	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", s.APIKey)
}

func TestNewSealer_EmptySecret(t *testing.T) {
	_, err := NewSealer("")
	assert.Error(t, err)
}
