package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/auth"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/cache"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/catalog"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/config"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/database"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deckservice"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/logging"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/server"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	maintenanceInterval = 5 * time.Minute
	catalogRetention    = 7 * 24 * time.Hour
	shutdownTimeout     = 10 * time.Second
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pokedeck",
		Short: "Deck builder View API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newDeckCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite cache database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("pokeapi-url", defaults.GetString("catalog.pokeapi_url"), "Public creature catalog base URL")
	cmd.PersistentFlags().Int("catalog-cache-ttl-minutes", defaults.GetInt("catalog.cache_ttl_minutes"), "Catalog cache freshness in minutes")
	cmd.PersistentFlags().String("deckservice-url", defaults.GetString("deckservice.base_url"), "Deck Service base URL")
	cmd.PersistentFlags().String("cors-allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated list of allowed origins")
	cmd.PersistentFlags().Int("view-idle-timeout-minutes", defaults.GetInt("views.idle_timeout_minutes"), "Idle minutes before a view is discarded")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "catalog.pokeapi_url", "pokeapi-url")
	bindFlag(cmd, "catalog.cache_ttl_minutes", "catalog-cache-ttl-minutes")
	bindFlag(cmd, "deckservice.base_url", "deckservice-url")
	bindFlag(cmd, "cors.allowed_origins", "cors-allowed-origins")
	bindFlag(cmd, "views.idle_timeout_minutes", "view-idle-timeout-minutes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, logLevel, err := logging.NewLoggerWithLevel(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	watchLogLevel(logLevel, logger)

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := cache.NewStore(cache.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	catalogClient, err := catalog.NewClient(catalog.ClientConfig{
		PokeAPIBaseURL:     appConfig.PokeAPIURL,
		DeckServiceBaseURL: appConfig.DeckServiceURL,
		RateInterval:       appConfig.CatalogRateLimit,
		Cache:              store,
		CacheTTL:           appConfig.CatalogCacheTTL,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	deckClient, err := deckservice.NewClient(deckservice.ClientConfig{
		BaseURL: appConfig.DeckServiceURL,
		Timeout: appConfig.DeckServiceTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	views := server.NewViewRegistry(time.Now)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:         catalogClient,
		DeckService:     deckClient,
		ProjectionCache: store,
		Validator:       auth.NewSessionValidator(auth.SessionValidatorConfig{Leeway: 30 * time.Second}),
		Views:           views,
		Realtime:        server.NewRealtimeDispatcher(),
		IDProvider:      server.NewUUIDProvider(),
		AllowedOrigins:  appConfig.AllowedOrigins,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runMaintenance(signalCtx, views, store, appConfig.ViewIdleTimeout, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("deck_service", appConfig.DeckServiceURL),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// watchLogLevel applies log.level edits from the config file without a restart.
func watchLogLevel(level zap.AtomicLevel, logger *zap.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(event fsnotify.Event) {
		next := logging.ParseLevel(viper.GetString("log.level"))
		if next == level.Level() {
			return
		}
		level.SetLevel(next)
		logger.Info("log level changed", zap.String("file", event.Name), zap.Stringer("level", next))
	})
	viper.WatchConfig()
}

// runMaintenance discards idle views and catalog rows nobody has refreshed in a week.
func runMaintenance(ctx context.Context, views *server.ViewRegistry, store *cache.Store, idleTimeout time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := views.Sweep(idleTimeout); removed > 0 {
				logger.Info("idle views discarded", zap.Int("count", removed), zap.Int("remaining", views.Len()))
			}
			purged, err := store.PurgeCatalog(ctx, catalogRetention)
			if err != nil {
				continue
			}
			if purged > 0 {
				logger.Debug("catalog entries purged", zap.Int64("count", purged))
			}
		}
	}
}
