package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dailyflow/internal/api"
	"dailyflow/internal/auth"
	"dailyflow/internal/config"
	"dailyflow/internal/domain"
	"dailyflow/internal/handlers/email"
	"dailyflow/internal/handlers/local"
	"dailyflow/internal/handlers/webhook"
	"dailyflow/internal/mail"
	"dailyflow/internal/notify"
	"dailyflow/internal/reminder"
	"dailyflow/internal/scheduler"
	"dailyflow/internal/session"
	"dailyflow/internal/store"
	"dailyflow/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "dailyflow.yaml", "YAML config file (optional)")
		addr       = flag.String("addr", "", "HTTP bind address (overrides http.addr)")
		dbPath     = flag.String("db", "", "SQLite DB path (overrides database.path)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	setupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	repo := store.NewSQLiteRepo(db)

	mailCfg := mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Secure:   cfg.Mail.Secure,
		User:     cfg.Mail.User,
		Password: cfg.Mail.Password,
		FromName: cfg.Mail.FromName,
		AppURL:   cfg.Mail.AppURL,
		Location: loc,
	}
	mailer, err := mail.New(mailCfg, mail.NewSMTP(mailCfg))
	if err != nil {
		log.Fatal().Err(err).Msg("mail templates")
	}

	hub := notify.NewHub()
	var sessions *session.Manager

	// Handlers registry
	handlers := map[string]worker.Handler{
		"local": local.Local{Sessions: presenters{&sessions}},
	}
	if mailer.Configured() {
		handlers["email"] = email.Email{Users: repo, Mail: mailer}
	} else {
		log.Warn().Msg("email reminders disabled: mail.user or mail.password not set")
	}
	if cfg.Webhook.URL != "" {
		handlers["webhook"] = webhook.New(webhook.Config{URL: cfg.Webhook.URL, Headers: cfg.Webhook.Headers, Timeout: cfg.Webhook.Timeout})
	}
	pool := worker.NewPool(handlers, cfg.Reminders.Workers, cfg.Reminders.QueueSize, cfg.Reminders.RatePerSec)

	var opts []reminder.Option
	if cfg.Reminders.RefetchOnFire {
		opts = append(opts, reminder.WithRefresher(repo.GetTask))
	}
	sessions = session.NewManager(
		session.Schedulers(cfg.Reminders.Enabled, reminder.SinkFunc(func(due domain.DueReminder) { pool.Deliver(due) }), opts...),
		func(userID string) *notify.Presenter {
			return notify.NewPresenter(hub.Runtime(userID), notify.Options{
				DismissAfter: cfg.Notifications.DismissAfter,
				Icon:         cfg.Notifications.Icon,
				Location:     loc,
			})
		},
		nil,
	)
	defer sessions.Close()

	housekeeping, err := scheduler.NewService(repo, sessions, scheduler.Config{
		Resync:      cfg.Reminders.Resync,
		Expire:      cfg.Reminders.Expire,
		SessionIdle: cfg.Reminders.SessionIdle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("housekeeping")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); pool.Run(ctx) }()
	go func() { defer wg.Done(); housekeeping.Start(ctx) }()

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: api.NewServer(api.Deps{
		Repo:     repo,
		Auth:     auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Sessions: sessions,
		Hub:      hub,
		Mail:     mailer,
		Delivery: pool,
		Location: loc,
		Debug:    cfg.HTTP.Debug,
	})}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Strs("channels", pool.Channels()).Bool("reminders", cfg.Reminders.Enabled).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
	cancel()
	wg.Wait()
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

// presenters resolves session presenters once the manager exists; the
// manager itself depends on the delivery pool.
type presenters struct{ m **session.Manager }

func (p presenters) Presenter(userID string) (*notify.Presenter, bool) {
	return (*p.m).Presenter(userID)
}
