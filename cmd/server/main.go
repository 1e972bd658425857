package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"letDrone/internal/config"
	"letDrone/internal/db"
	"letDrone/internal/events"
	grpcserver "letDrone/internal/grpc"
	"letDrone/internal/httpapi"
	"letDrone/internal/logging"
	"letDrone/internal/metrics"
	"letDrone/internal/oauth"
	"letDrone/internal/ocr"
	"letDrone/internal/policy"
	"letDrone/internal/retry"
	"letDrone/internal/service"
	"letDrone/internal/storage"
	"letDrone/repository"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logging.Init("letdrone", "development", "info")
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Init("letdrone", cfg.App.Env, cfg.App.LogLevel)
	log.Info().Str("config", cfg.String()).Msg("configuration loaded")

	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Error().Err(err).Msg("close db")
		}
	}()

	users := repository.NewUserRepository(d)
	patients := repository.NewPatientRepository(d)
	pharmacists := repository.NewPharmacistRepository(d)
	geos := repository.NewGeolocationRepository(d)
	drones := repository.NewDroneRepository(d)
	stations := repository.NewGCSRepository(d)
	prescriptions := repository.NewPrescriptionRepository(d)
	comments := repository.NewCommentRepository(d)
	deliveries := repository.NewDeliveryRepository(d)

	collector := metrics.New()
	publisher := buildPublishers(cfg.Events, collector)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close event publishers")
		}
	}()

	recognizer := ocr.NewClient(cfg.OCR.URL, cfg.OCR.Timeout)
	warmupCtx, stopWarmup := context.WithCancel(context.Background())
	defer stopWarmup()
	go func() { _ = recognizer.Warmup(warmupCtx, retry.DefaultConfig()) }()

	tokens := oauth.NewClient(cfg.OAuth.TokenURL, cfg.OAuth.RevokeURL, cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.Timeout)

	fleet := &service.FleetService{Drones: drones, Stations: stations, Geolocations: geos}
	deliverySvc := &service.DeliveryService{
		Deliveries:     deliveries,
		Prescriptions:  prescriptions,
		Drones:         drones,
		Geolocations:   geos,
		Events:         publisher,
		Metrics:        collector,
		CruiseSpeedMPH: cfg.Fleet.CruiseSpeedMPH,
	}
	handler := &httpapi.Handler{
		Accounts: &service.AccountService{Users: users, Tokens: tokens},
		Profiles: &service.ProfileService{Users: users, Patients: patients, Pharmacists: pharmacists, Geolocations: geos},
		Fleet:    fleet,
		Prescriptions: &service.PrescriptionService{
			Prescriptions: prescriptions,
			Geolocations:  geos,
			Stations:      stations,
			Images:        storage.NewFileStore(cfg.Media.Root, cfg.Media.MaxUploadBytes),
			Recognizer:    recognizer,
			Metrics:       collector,
		},
		Comments:       &service.CommentService{Comments: comments, Prescriptions: prescriptions},
		Deliveries:     deliverySvc,
		Resolver:       policy.NewResolver(users, patients, pharmacists),
		Tokens:         tokens,
		Metrics:        collector,
		DB:             d,
		JWTSecret:      cfg.Auth.JWTSecret,
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("address", cfg.HTTP.Address).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	shutdownGRPC, err := grpcserver.StartGRPC(cfg, fleet, deliverySvc)
	if err != nil {
		log.Fatal().Err(err).Msg("start grpc")
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	stopWarmup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownGRPC(ctx); err != nil {
		log.Error().Err(err).Msg("grpc shutdown")
	}
	log.Info().Msg("server exited")
}

// loadConfig is strict outside development.
func loadConfig() (*config.Config, error) {
	if env := os.Getenv("APP_ENV"); env == "" || env == "development" {
		return config.LoadWithDefaults()
	}
	return config.Load()
}

// buildPublishers wires the configured event sinks. A sink that cannot be
// reached at startup is logged and skipped.
func buildPublishers(cfg config.EventsConfig, collector *metrics.Collector) *events.Multi {
	multi := events.NewMulti(collector)
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		p, err := events.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis event publisher disabled")
		} else {
			multi.Add("redis", p)
		}
	}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			log.Warn().Err(err).Msg("amqp event publisher disabled")
		} else {
			multi.Add("amqp", p)
		}
	}
	log.Info().Int("publishers", multi.Len()).Msg("delivery event publishers ready")
	return multi
}
