package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/tblumenau/voodoo-ss-extension/internal/api"
	"github.com/tblumenau/voodoo-ss-extension/internal/browser"
	"github.com/tblumenau/voodoo-ss-extension/internal/config"
	"github.com/tblumenau/voodoo-ss-extension/internal/credentials"
	"github.com/tblumenau/voodoo-ss-extension/internal/gateway"
	"github.com/tblumenau/voodoo-ss-extension/internal/logsink"
	"github.com/tblumenau/voodoo-ss-extension/internal/messenger"
	"github.com/tblumenau/voodoo-ss-extension/internal/page"
	"github.com/tblumenau/voodoo-ss-extension/internal/storage"
	"github.com/tblumenau/voodoo-ss-extension/internal/web"
	"go.uber.org/zap"
)

var noBrowser bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: HTTP pages and the Chrome bridge",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve the HTTP pages without attaching to Chrome")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewDuckStore(cfg.GetDatabasePath(), logger,
		storage.WithThreads(cfg.Advanced.DuckDBThreads),
		storage.WithMemoryLimit(cfg.Advanced.DuckDBMemoryLimit))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	credOpts := []credentials.Option{
		credentials.WithValidity(cfg.TokenValidity()),
		credentials.WithLogger(logger),
	}
	if cfg.Security.TokenSecret != "" {
		sealer, err := credentials.NewSealer(cfg.Security.TokenSecret)
		if err != nil {
			return fmt.Errorf("invalid token secret: %w", err)
		}
		credOpts = append(credOpts, credentials.WithSealer(sealer))
	}
	creds := credentials.NewManager(store, credOpts...)
	if err := seedEndpoint(ctx, creds, cfg.Gateway.Endpoint); err != nil {
		return err
	}

	bus := messenger.New(logger)
	sink := logsink.New(store, bus, cfg.Advanced.LogCapacity, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sink.Flush(flushCtx)
	}()

	client := gateway.NewClient(cfg.HTTPTimeout(), cfg.Gateway.DevicesPath)
	gw := gateway.New(creds, client, sink, bus, nil, logger)
	defer gw.Close()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	observer := page.NewObserver(catalog, creds, logger)

	bridge := browser.New(browser.Options{
		DebuggerURL:  cfg.Browser.DebuggerURL,
		Binary:       cfg.Browser.Binary,
		Headless:     cfg.Browser.Headless,
		HostPageURL:  cfg.Browser.HostPageURL,
		BaseURL:      cfg.GetBaseURL(),
		PromptWidth:  cfg.Browser.PromptWidth,
		PromptHeight: cfg.Browser.PromptHeight,
	}, observer, bus, sink, logger)
	gw.SetPrompter(bridge)

	e := newServer(cfg)
	handlers := api.NewHandlers(&api.Dependencies{
		Sink:            sink,
		Options:         creds,
		Gateway:         gw,
		Bus:             bus,
		Version:         Version,
		WebSocketBuffer: cfg.Advanced.WebSocketBuffer,
		Logger:          logger,
	})
	api.RegisterRoutes(e, handlers)
	if err := web.RegisterStaticRoutes(e); err != nil {
		return fmt.Errorf("failed to register static routes: %w", err)
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	printBanner(cmd, cfg)

	if !noBrowser {
		if err := bridge.Start(ctx); err != nil {
			logger.Error("browser bridge failed to start", zap.Error(err))
			sink.Recordf("Could not attach to Chrome: %v", err)
		}
		defer bridge.Close()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// seedEndpoint stores the configured endpoint when the operator has not
// set one yet.
func seedEndpoint(ctx context.Context, creds *credentials.Manager, endpoint string) error {
	if endpoint == "" {
		return nil
	}
	s, err := creds.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if s.Endpoint != "" {
		return nil
	}
	s.Endpoint = endpoint
	return creds.SaveOptions(ctx, s)
}

func loadCatalog(cfg *config.AppConfig) (*page.Catalog, error) {
	if cfg.Advanced.PatternCatalog == "" {
		return page.DefaultCatalog()
	}
	catalog, err := page.LoadCatalog(cfg.Advanced.PatternCatalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern catalog: %w", err)
	}
	logger.Info("pattern catalog loaded", zap.String("path", cfg.Advanced.PatternCatalog))
	return catalog, nil
}

func newServer(cfg *config.AppConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler
	api.SetDevelopment(debug)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/health" ||
				strings.HasPrefix(path, "/static/") ||
				strings.HasSuffix(path, "/ws/log")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{cfg.GetBaseURL()}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
	return e
}

func printBanner(cmd *cobra.Command, cfg *config.AppConfig) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Voodoo Locate %s (built %s)\n", Version, BuildTime)
	fmt.Fprintf(out, "  Config:   %s\n", configPath)
	fmt.Fprintf(out, "  Listen:   http://%s\n", cfg.GetServerAddr())
	fmt.Fprintf(out, "  Data Dir: %s\n", cfg.GetDataDir())
	fmt.Fprintf(out, "\nOpen %s/options to configure the locate server\n\n", cfg.GetBaseURL())
}
