// Package config provides XML-based configuration for the locate daemon.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"VoodooLocate"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Browser configuration
	Browser BrowserConfig `xml:"Browser"`

	// Gateway configuration
	Gateway GatewayConfig `xml:"Gateway"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains persisted state settings
type StorageConfig struct {
	DataDirectory string `xml:"DataDirectory"`
	DatabaseFile  string `xml:"DatabaseFile"`
}

// BrowserConfig says how to reach the Chrome instance showing the host page
type BrowserConfig struct {
	// DebuggerURL attaches to a running Chrome; empty launches one.
	DebuggerURL  string `xml:"DebuggerURL"`
	Binary       string `xml:"Binary"`
	Headless     bool   `xml:"Headless"`
	HostPageURL  string `xml:"HostPageURL"`
	PromptWidth  int    `xml:"LoginPromptWidth"`
	PromptHeight int    `xml:"LoginPromptHeight"`
}

// GatewayConfig contains remote service settings
type GatewayConfig struct {
	Endpoint           string `xml:"Endpoint"`
	TokenValidityHours int    `xml:"TokenValidityHours"`
	// HTTPTimeoutSeconds of zero leaves the transport default.
	HTTPTimeoutSeconds int    `xml:"HTTPTimeoutSeconds"`
	DevicesPath        string `xml:"DevicesPath"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	// TokenSecret is a 64 hex character AES key. When set, the session
	// token is encrypted at rest.
	TokenSecret string `xml:"TokenSecret"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	LogCapacity          int    `xml:"LogCapacity"`
	PatternCatalog       string `xml:"PatternCatalog"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
	WebSocketBuffer      int    `xml:"WebSocketBuffer"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8091,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "1M",
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			DatabaseFile:  "voodoo.duckdb",
		},
		Browser: BrowserConfig{
			DebuggerURL:  "",
			Headless:     false,
			HostPageURL:  "https://ship.shipstation.com/orders",
			PromptWidth:  400,
			PromptHeight: 300,
		},
		Gateway: GatewayConfig{
			Endpoint:           "",
			TokenValidityHours: 240,
			HTTPTimeoutSeconds: 0,
			DevicesPath:        "/api/devices/",
		},
		Security: SecurityConfig{
			TokenSecret: "",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			LogCapacity:          100,
			PatternCatalog:       "",
			DuckDBThreads:        1,
			DuckDBMemoryLimit:    "256MB",
			WebSocketBuffer:      64,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Voodoo Locate Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if endpoint := os.Getenv("VOODOO_ENDPOINT"); endpoint != "" {
		c.Gateway.Endpoint = endpoint
	}

	if debugger := os.Getenv("CHROME_DEBUGGER_URL"); debugger != "" {
		c.Browser.DebuggerURL = debugger
	}

	if secret := os.Getenv("VOODOO_TOKEN_SECRET"); secret != "" {
		c.Security.TokenSecret = secret
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if c.Advanced.PatternCatalog != "" && !filepath.IsAbs(c.Advanced.PatternCatalog) {
		c.Advanced.PatternCatalog = filepath.Join(configDir, c.Advanced.PatternCatalog)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetDatabasePath returns the absolute path of the state database
func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.Storage.DataDirectory, c.Storage.DatabaseFile)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetBaseURL returns the URL the daemon's own pages are served from
func (c *AppConfig) GetBaseURL() string {
	host := c.Server.BindAddress
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// TokenValidity returns how long a session token stays usable
func (c *AppConfig) TokenValidity() time.Duration {
	return time.Duration(c.Gateway.TokenValidityHours) * time.Hour
}

// HTTPTimeout returns the outbound request timeout
func (c *AppConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.Gateway.HTTPTimeoutSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
