package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/thermistor-controller/db"
	"github.com/thatsimonsguy/thermistor-controller/internal/adc"
	"github.com/thatsimonsguy/thermistor-controller/internal/api"
	"github.com/thatsimonsguy/thermistor-controller/internal/calibration"
	"github.com/thatsimonsguy/thermistor-controller/internal/config"
	"github.com/thatsimonsguy/thermistor-controller/internal/datadog"
	"github.com/thatsimonsguy/thermistor-controller/internal/gpio"
	"github.com/thatsimonsguy/thermistor-controller/internal/logging"
	"github.com/thatsimonsguy/thermistor-controller/internal/notifications"
	"github.com/thatsimonsguy/thermistor-controller/internal/temperature"
	"github.com/thatsimonsguy/thermistor-controller/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db_path", cfg.DBPath).
		Str("adc_driver", cfg.ADC.Driver).
		Msg("Starting thermistor controller")

	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED: actuator writes are disabled system-wide")
	}

	table := calibration.Default()
	if cfg.CalibrationFile != "" {
		loaded, err := calibration.LoadFile(cfg.CalibrationFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.CalibrationFile).Msg("Failed to load calibration table")
		}
		table = loaded
	}
	if err := table.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Refusing to start with an invalid calibration table")
	}
	log.Info().
		Int("entries", table.Count()).
		Float64("lower_c", table.LowerLimitC).
		Float64("upper_c", table.UpperLimitC()).
		Msg("Calibration table loaded")

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	sampler, err := adc.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ADC sampler")
	}

	actuator := gpio.NewActuator(cfg)
	if cfg.ControlEnabled {
		if err := actuator.ValidateStartup(); err != nil {
			log.Fatal().Err(err).Msg("Refusing to enable actuator due to unsafe pin state")
		}
	}

	metrics := datadog.New(cfg)

	deps := temperature.Deps{
		Sampler:  sampler,
		Actuator: actuator,
		Metrics:  metrics,
	}
	if ntfy := notifications.New(cfg.NtfyTopic); ntfy != nil {
		deps.Notifier = ntfy
	}

	service := temperature.NewService(dbConn, cfg, table, deps)
	if err := service.LoadSetpoint(); err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted setpoint, using default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := service.Start(loopCtx)

	server := api.NewServer(service, &cfg)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- server.Start(cfg.APIPort)
	}()

	var exitErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case exitErr = <-apiErr:
	}

	// the loop must be idle before the actuator is released
	stopLoop()
	<-loopDone

	if err := sampler.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close ADC sampler")
	}
	metrics.Close()
	dbConn.Close()

	if exitErr != nil {
		shutdown.ShutdownWithError(actuator, exitErr, "REST API server failed")
		return
	}
	shutdown.Shutdown(actuator, 0)
}
