// Package web provides the embedded operator pages and the script the
// browser bridge installs into the host page.
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed static/*
var staticFiles embed.FS

// Page routes and the files they serve.
var pages = map[string]string{
	"/login":   "login.html",
	"/options": "options.html",
	"/log":     "log.html",
}

// IconPath is where the control icon is served.
const IconPath = "/static/icon.svg"

// LoginPath is the login prompt page.
const LoginPath = "/login"

// GetFileSystem returns the embedded filesystem with the static folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "static")
}

// RegisterStaticRoutes registers the operator pages and their assets with Echo.
// The API routes should be registered before calling this function.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
	e.GET("/static/*", echo.WrapHandler(fileServer))

	for route, name := range pages {
		name := name
		e.GET(route, func(c echo.Context) error {
			return serveHTML(c, staticFS, name)
		})
	}
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/options")
	})
	return nil
}

func serveHTML(c echo.Context, staticFS fs.FS, name string) error {
	f, err := staticFS.Open(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, name+" not found")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read "+name)
	}
	return c.HTMLBlob(http.StatusOK, content)
}

// WatcherConfig is handed to the watcher script when it starts.
type WatcherConfig struct {
	IconURL    string `json:"iconURL"`
	BatchDelay int    `json:"batchDelay,omitempty"`
}

// WatcherFunc returns the watcher as a function expression taking a
// WatcherConfig, suitable for evaluating with an argument.
func WatcherFunc() (string, error) {
	data, err := staticFiles.ReadFile("static/watcher.js")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WatcherScript returns the watcher as a self-invoking script bound to
// cfg, for installing before a document's own scripts run.
func WatcherScript(cfg WatcherConfig) (string, error) {
	fn, err := WatcherFunc()
	if err != nil {
		return "", err
	}
	arg, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)(%s);", fn, arg), nil
}

// GetEmbeddedFile returns a specific file from the embedded filesystem.
// Used for testing or direct file access.
func GetEmbeddedFile(name string) (fs.File, error) {
	staticFS, err := GetFileSystem()
	if err != nil {
		return nil, err
	}
	return staticFS.Open(name)
}
