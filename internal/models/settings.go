// Package models contains domain types shared by the locate daemon.
package models

import "time"

// Storage keys. They match the option names the operator sees on the
// options page, so a store dump reads naturally.
const (
	KeyEndpoint       = "endpoint"
	KeyName           = "name"
	KeyPickword       = "pickword"
	KeyColor          = "color"
	KeySeconds        = "seconds"
	KeyAPIKey         = "apikey"
	KeyAPIKeyIssuedAt = "apikeyIssuedAt"
	KeyMinimalMode    = "minimalmode"
	KeyAutoSubmit     = "autosubmit"
	KeyAddOrder       = "addOrder"
	KeyAddShipment    = "addShipment"
	KeyAddUPC         = "addUPC"
	KeyAddSkuBarcode  = "addSkuBarcode"
	KeyAddProductName = "addProductName"
	KeyBeep           = "beep"
	KeyConsoleLog     = "consoleLog"
)

// Settings is the credential record: where to send commands, how the
// devices should display them, and the current session token.
type Settings struct {
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	Name     string `json:"name" validate:"max=64"`
	Pickword string `json:"pickword" validate:"max=64"`
	Color    string `json:"color" validate:"max=32"`
	Seconds  int    `json:"seconds" validate:"gte=0,lte=3600"`

	// APIKey is empty when logged out.
	APIKey         string    `json:"-"`
	APIKeyIssuedAt time.Time `json:"-"`

	MinimalMode    bool `json:"minimalmode"`
	AutoSubmit     bool `json:"autosubmit"`
	AddOrder       bool `json:"addOrder"`
	AddShipment    bool `json:"addShipment"`
	AddUPC         bool `json:"addUPC"`
	AddSkuBarcode  bool `json:"addSkuBarcode"`
	AddProductName bool `json:"addProductName"`
	Beep           bool `json:"beep"`
}

// LoggedIn reports whether a session token is present.
func (s Settings) LoggedIn() bool {
	return s.APIKey != ""
}

// TokenExpired reports whether the token was issued more than validity ago.
// A token without an issue time is treated as fresh.
func (s Settings) TokenExpired(now time.Time, validity time.Duration) bool {
	if s.APIKey == "" || s.APIKeyIssuedAt.IsZero() || validity <= 0 {
		return false
	}
	return now.Sub(s.APIKeyIssuedAt) > validity
}
