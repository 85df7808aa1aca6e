package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telecare/internal/api"
	"telecare/internal/appointments"
	"telecare/internal/config"
	"telecare/internal/database"
	"telecare/internal/domain"
	"telecare/internal/events"
	"telecare/internal/metrics"
	"telecare/internal/notify"
	"telecare/internal/reconcile"
	"telecare/internal/refunds"
	"telecare/internal/schedule"
	"telecare/internal/slots"
	"telecare/shared/access"
	"telecare/shared/audit"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("TELECARE_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule timezone")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accessSvc := access.NewService(db, db, logger)
	if err := accessSvc.SyncAdmins(ctx, adminsFromConfig(cfg.Admins)); err != nil {
		logger.Fatal().Err(err).Msg("sync admins")
	}

	clock := domain.SystemClock
	bus := events.NewEventBus(logger)
	compensator := refunds.NewCompensator(db, clock, logger)
	generator := slots.NewGenerator(db, db, db, loc)
	reconciler := reconcile.NewReconciler(db, compensator, bus, clock, logger)

	scheduleSvc := schedule.NewService(db, db, refunds.NewCascade(db, compensator, clock, loc), bus, loc, logger)
	appointmentSvc := appointments.NewService(appointments.Deps{
		Appointments: db,
		Users:        db,
		Tx:           db,
		Generator:    generator,
		Reconciler:   reconciler,
		Compensator:  compensator,
		Guard:        accessSvc,
		Publisher:    bus,
		Clock:        clock,
	}, logger)

	var auditNotifier audit.Notifier
	if token := cfg.Telegram.BotToken; token != "" {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot error")
		}
		bot.Debug = cfg.Telegram.Debug

		sender := notify.NewSender(bot, cfg.NotifyRate(), notify.DefaultRetryConfig(), logger)
		notify.NewNotifier(sender, db, loc, logger).Subscribe(bus)
		auditNotifier = notify.NewAdminBroadcaster(sender, accessSvc, logger)
		logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
	} else {
		logger.Warn().Msg("telegram.bot_token not set, notifications disabled")
	}

	auditSvc := audit.NewService(audit.Config{ExportOnStart: cfg.Audit.ExportOnStart, Location: loc},
		db, audit.NewLedgerWorkbook, auditNotifier, clock, logger)
	if cfg.Audit.Enabled && auditNotifier != nil {
		auditSvc.Start()
		defer auditSvc.Stop()
	}

	if !cfg.Reconcile.Disabled {
		sweeper := reconcile.NewSweeper(reconciler, rdb, cfg.SweepInterval(), cfg.LockTTL(), logger)
		go sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	go database.NewBackupService(db, cfg.Backup, cfg.BackupInterval(), &logger).Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		port := cfg.Monitoring.PrometheusPort
		if port == 0 {
			port = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, port, &logger)
	}

	ready := map[string]api.Pinger{"database": api.PingFunc(db.PingContext)}
	if rdb != nil {
		ready["redis"] = api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	rps, burst := cfg.RateLimit()
	server := api.NewHTTPServer(api.Config{
		Port:           cfg.ServerPort(),
		APIKeys:        cfg.Server.APIKeys,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		ReadTimeout:    cfg.ReadTimeout(),
		WriteTimeout:   cfg.WriteTimeout(),
	}, api.Deps{
		Appointments: appointmentSvc,
		Schedule:     scheduleSvc,
		Generator:    generator,
		Access:       accessSvc,
		Audit:        auditSvc,
		Clock:        clock,
		Ready:        ready,
	}, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown")
		}
	}()

	logger.Info().Str("timezone", loc.String()).Msg("telecare started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("telecare stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logging.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func adminsFromConfig(list []config.AdminConfig) []access.Admin {
	admins := make([]access.Admin, 0, len(list))
	for _, a := range list {
		admins = append(admins, access.Admin{ID: a.ID, Name: a.Name, ChatID: a.ChatID})
	}
	return admins
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
