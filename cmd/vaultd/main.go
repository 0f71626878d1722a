package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defilive/vaultd/internal/config"
	"github.com/defilive/vaultd/internal/core/application"
	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/defilive/vaultd/internal/infrastructure/db"
	"github.com/defilive/vaultd/internal/infrastructure/kaspaindex"
	"github.com/defilive/vaultd/internal/infrastructure/payout"
	scheduler "github.com/defilive/vaultd/internal/infrastructure/scheduler/gocron"
	"github.com/defilive/vaultd/internal/interface/web"
	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	sentryDsn = ""
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	for _, name := range cfg.MissingSettings() {
		log.Warnf("%s is not set, running with degraded behavior", name)
	}

	sentryEnabled := !cfg.DisableTelemetry && sentryDsn != ""

	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDsn,
			Environment:      "prod",
			AttachStacktrace: true,
			Release:          version,
		}); err != nil {
			log.Fatal(err)
		}

		sentryLevels := []log.Level{log.ErrorLevel, log.FatalLevel, log.PanicLevel}
		sentryHook, err := sentrylogrus.New(sentryLevels, sentry.ClientOptions{
			Dsn:              sentryDsn,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Fatal(err)
		}

		log.AddHook(sentryHook)

		defer func() {
			sentry.Flush(5 * time.Second)
			sentryHook.Flush(5 * time.Second)
		}()
	}

	log.Infof("starting vaultd %s (%s, built %s)...", version, commit, date)

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: []any{cfg.Datadir, nil},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	indexerSvc := kaspaindex.NewService(cfg.NetworkRPC)
	verifier := application.NewTxVerifier(indexerSvc, cfg.VaultScript, cfg.IsTestNetwork())
	payoutSvc := payout.NewManualExecutor(cfg.VaultSigningKey != "")
	schedulerSvc := scheduler.NewScheduler()

	appSvc := application.NewService(dbSvc, verifier, payoutSvc, schedulerSvc, application.ServiceOptions{
		VaultAddress:     cfg.VaultAddress,
		RecipientAddress: cfg.RecipientAddress,
		Network:          cfg.Network,
		NetworkRPC:       cfg.NetworkRPC,
		SweepInterval:    time.Duration(cfg.SweepInterval) * time.Second,
	})
	if err := appSvc.Start(); err != nil {
		log.WithError(err).Fatal("failed to start application service")
	}

	if cfg.SeedFile != "" {
		seedChallenges(appSvc, cfg.SeedFile)
	}

	svc := web.NewService(web.Config{
		Port:          cfg.HTTPPort,
		PublicURL:     cfg.PublicURL,
		AdminSecret:   cfg.AdminSecret,
		SentryEnabled: sentryEnabled,
	}, appSvc)

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	appSvc.Stop()
	svc.Stop()
	dbSvc.Close()
	log.Exit(0)
}

type seedChallenge struct {
	ID               string  `json:"defiId"`
	Title            string  `json:"title"`
	Goal             float64 `json:"goal"`
	DeadlineMs       int64   `json:"deadline"`
	RecipientAddress string  `json:"recipientAddress"`
	VaultAddress     string  `json:"vaultAddress"`
	Network          string  `json:"network"`
	NetworkRPC       string  `json:"networkRpc"`
}

// seedChallenges creates the challenges listed in the given JSON file.
// Failures are logged and skipped so a partially stale seed file does not
// prevent startup; challenges already in the store are left untouched.
func seedChallenges(appSvc *application.Service, path string) {
	buf, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Warnf("failed to read seed file %s", path)
		return
	}
	var seeds []seedChallenge
	if err := json.Unmarshal(buf, &seeds); err != nil {
		log.WithError(err).Warnf("failed to parse seed file %s", path)
		return
	}

	ctx := context.Background()
	for _, seed := range seeds {
		_, err := appSvc.CreateChallenge(ctx, application.CreateChallengeRequest{
			ID:               seed.ID,
			Title:            seed.Title,
			Goal:             decimal.NewFromFloat(seed.Goal),
			Deadline:         time.UnixMilli(seed.DeadlineMs),
			RecipientAddress: seed.RecipientAddress,
			VaultAddress:     seed.VaultAddress,
			Network:          seed.Network,
			NetworkRPC:       seed.NetworkRPC,
		})
		if err != nil {
			if domain.IsKind(err, domain.ErrChallengeExists) {
				continue
			}
			log.WithError(err).Warnf("failed to seed challenge %s", seed.ID)
		}
	}
	log.Infof("seeded %d challenges from %s", len(seeds), path)
}
