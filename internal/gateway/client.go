package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tblumenau/voodoo-ss-extension/internal/models"
)

// Remote paths, relative to the configured endpoint.
const (
	LocatePath         = "/shipStationLaunch/"
	LoginPath          = "/user/login/"
	DefaultDevicesPath = "/api/devices/"
)

// RemoteResult is the body of a successful command call.
type RemoteResult struct {
	StatusText string
	// ServerTime is how long the service spent on its side.
	ServerTime time.Duration
	Issues     []string
	// DecodeErr is set when the call succeeded but the body was unreadable.
	DecodeErr error
}

type remoteBody struct {
	ShipStationTime flexSeconds `json:"ShipStationTime"`
	Issues          []string    `json:"issues"`
}

// flexSeconds accepts a number or a numeric string of seconds.
type flexSeconds float64

func (f *flexSeconds) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexSeconds(v)
	return nil
}

// Client speaks the remote HTTP contract.
type Client struct {
	http        *http.Client
	devicesPath string
}

// NewClient creates a Client. A zero timeout leaves the transport default.
func NewClient(timeout time.Duration, devicesPath string) *Client {
	if devicesPath == "" {
		devicesPath = DefaultDevicesPath
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		devicesPath: devicesPath,
	}
}

// LocateURL builds the locate request URL. Parameters keep the order the
// service documents.
func LocateURL(s models.Settings, cmd models.Command) string {
	params := []struct{ k, v string }{
		{"name", s.Name},
		{"color", s.Color},
		{"seconds", strconv.Itoa(s.Seconds)},
		{"orderNumber", cmd.OrderNumber},
		{"itemSku", cmd.ItemSku},
		{"quantity", cmd.Quantity},
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(s.Endpoint, "/"))
	b.WriteString(LocatePath)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

// LoginURL is where credentials are exchanged for a token.
func LoginURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + LoginPath
}

// DevicesURL is where device batches are posted.
func (c *Client) DevicesURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + c.devicesPath
}

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, rawURL, token string) (*RemoteResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("api-key", token)
	return c.do(req)
}

// PostJSON issues an authenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, rawURL, token string, body interface{}) (*RemoteResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &TransportError{Op: "encode body", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", token)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*RemoteResult, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: req.Method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, newRemoteRejected(resp)
	}

	var body remoteBody
	result := &RemoteResult{StatusText: http.StatusText(resp.StatusCode)}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && err != io.EOF {
		result.DecodeErr = err
		return result, nil
	}
	result.ServerTime = time.Duration(float64(body.ShipStationTime) * float64(time.Second))
	result.Issues = body.Issues
	return result, nil
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	APIKey string `json:"apikey"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, endpoint string, creds models.LoginRequest) (string, error) {
	payload, err := json.Marshal(loginBody{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return "", &TransportError{Op: "encode login", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, LoginURL(endpoint), bytes.NewReader(payload))
	if err != nil {
		return "", &TransportError{Op: "build login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", newRemoteRejected(resp)
	}

	var res loginResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", &TransportError{Op: "decode login", Err: err}
	}
	if res.APIKey == "" {
		return "", &TransportError{Op: "login", Err: fmt.Errorf("response carried no apikey")}
	}
	return res.APIKey, nil
}
