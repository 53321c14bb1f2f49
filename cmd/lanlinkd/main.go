// Command lanlinkd is the LanLink daemon. It wires the coordinator, the
// local-network components, and the control REST API together, and handles
// graceful shutdown when terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/api"
	"lanlink/internal/config"
	"lanlink/internal/coordinator"
	"lanlink/internal/discovery"
	"lanlink/internal/events"
	"lanlink/internal/models"
	"lanlink/internal/platform"
	"lanlink/internal/store"
)

const version = "0.3.0"

var (
	logLevelFlag   string
	deviceNameFlag string
)

// parseFlags parses command line flags and returns the config path.
func parseFlags() string {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&deviceNameFlag, "device-name", "", "Name advertised to other LanLink devices (default: hostname)")
	flag.Parse()
	return *configPath
}

func main() {
	configPath := parseFlags()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(logLevelFlag)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Str("version", version).Msg("Starting LanLink daemon")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	log.Info().Str("path", cfg.Storage.DBPath).Msg("Opening saved-network store")
	st, err := store.New(cfg.Storage.DBPath, cfg.Storage.KeyPath, cfg.Network.MaxSavedNetworks)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open saved-network store")
	}
	defer st.Close()

	deviceName := deviceNameFlag
	if deviceName == "" {
		if deviceName, err = os.Hostname(); err != nil {
			deviceName = "lanlink"
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	coord := coordinator.New(coordinator.Deps{
		Config:     cfg,
		ConfigPath: configPath,
		Bus:        bus,
		Store:      st,
		Identity: discovery.Identity{
			DeviceID:   uuid.NewString(),
			DeviceName: deviceName,
			DeviceType: models.DeviceDesktop,
			Port:       cfg.Network.DefaultPort,
		},
		Wifi:         platform.NewNMCli(),
		Hotspot:      platform.NewNMCli(),
		Connectivity: platform.NewPollingConnectivitySource(0),
		Permissions:  platform.GrantAll{},
		Clock:        platform.SystemClock{},
	})

	if err := coord.Initialize(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize coordinator")
	}

	router := mux.NewRouter()
	api.NewWifiHandler(coord).RegisterRoutes(router)
	api.NewNetworkHandler(coord).RegisterRoutes(router)
	api.NewStatusHandler(coord, version).RegisterRoutes(router)

	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Starting control API server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Control API server failed")
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Control API server shutdown failed")
	}
	coord.Shutdown(shutdownCtx)

	log.Info().Msg("LanLink daemon stopped")
}
