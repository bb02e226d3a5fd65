package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"inkwell.dev/internal/content"
	"inkwell.dev/internal/httpapi"
	"inkwell.dev/internal/identity"
	"inkwell.dev/internal/kv"
	"inkwell.dev/internal/mail"
	"inkwell.dev/internal/obs"
)

var version = "0.3.1"

type config struct {
	addr             string
	baseURL          string
	sessionSecret    string
	sessionNamespace uuid.UUID
	sessionTTL       time.Duration
	actionSecret     string
	pgDSN            string
	redisURL         string
	smtp             mail.SMTPConfig
}

// loadConfig reads INKWELL_* env vars and fails fast on anything the
// identity core cannot run without.
func loadConfig() config {
	cfg := config{
		addr:          envOr("INKWELL_ADDR", ":8080"),
		baseURL:       envOr("INKWELL_BASE_URL", "http://localhost:8080"),
		sessionSecret: os.Getenv("INKWELL_SESSION_SECRET"),
		actionSecret:  os.Getenv("INKWELL_ACTION_SECRET"),
		pgDSN:         os.Getenv("INKWELL_PG_DSN"),
		redisURL:      os.Getenv("INKWELL_REDIS_URL"),
	}
	if cfg.sessionSecret == "" {
		log.Fatal("INKWELL_SESSION_SECRET is required")
	}
	if cfg.actionSecret == "" {
		log.Fatal("INKWELL_ACTION_SECRET is required")
	}
	ns := os.Getenv("INKWELL_SESSION_NAMESPACE")
	if ns == "" {
		log.Fatal("INKWELL_SESSION_NAMESPACE is required")
	}
	parsed, err := uuid.Parse(ns)
	if err != nil {
		log.Fatalf("INKWELL_SESSION_NAMESPACE is not a UUID: %v", err)
	}
	cfg.sessionNamespace = parsed

	if raw := os.Getenv("INKWELL_SESSION_TTL_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			log.Fatalf("INKWELL_SESSION_TTL_SECONDS is invalid: %q", raw)
		}
		cfg.sessionTTL = time.Duration(secs) * time.Second
	}

	cfg.smtp = mail.SMTPConfig{
		Host:     os.Getenv("INKWELL_SMTP_HOST"),
		Username: os.Getenv("INKWELL_SMTP_USERNAME"),
		Password: os.Getenv("INKWELL_SMTP_PASSWORD"),
		From:     envOr("INKWELL_SMTP_FROM", "no-reply@inkwell.dev"),
	}
	if raw := os.Getenv("INKWELL_SMTP_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("INKWELL_SMTP_PORT is invalid: %q", raw)
		}
		cfg.smtp.Port = port
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, envOr("INKWELL_COMMIT", "unknown"))

	cfg := loadConfig()
	ctx := context.Background()

	// Session/action-token rows live in Redis when configured, in
	// process memory otherwise.
	var store kv.Store
	if cfg.redisURL != "" {
		redisStore, err := kv.OpenRedis(ctx, cfg.redisURL)
		if err != nil {
			log.Fatalf("open redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		log.Println("INKWELL_REDIS_URL not set, using in-memory kv store")
		store = kv.NewMemory()
	}

	var (
		db          *sql.DB
		users       identity.UserStore
		memberships identity.MembershipStore
		keys        identity.ApiKeyStore
		contentSvc  content.Service
	)
	if cfg.pgDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.pgDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		pg, err := identity.NewPGStore(db)
		if err != nil {
			log.Fatalf("identity store: %v", err)
		}
		users = pg
		memberships = pg.Memberships()
		keys = pg
		contentSvc = content.NewPGStore(db)
	} else {
		log.Println("INKWELL_PG_DSN not set, using in-memory stores")
		users = identity.NewMemoryUsers()
		memberships = identity.NewMemoryMemberships()
		keys = identity.NewMemoryApiKeys()
		contentSvc = content.NewInMemory()
	}

	sessions, err := identity.NewSessionStore(store, identity.SessionConfig{
		GlobalSecret: cfg.sessionSecret,
		Namespace:    cfg.sessionNamespace,
		TTL:          cfg.sessionTTL,
	})
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	actions, err := identity.NewActionTokenIssuer(store, identity.ActionTokenConfig{
		Secret: cfg.actionSecret,
	})
	if err != nil {
		log.Fatalf("action token issuer: %v", err)
	}
	resolver, err := identity.NewRoleResolver(memberships, contentSvc, identity.DefaultResolverConfig())
	if err != nil {
		log.Fatalf("role resolver: %v", err)
	}

	var sender mail.Sender
	if cfg.smtp.Host != "" {
		sender, err = mail.NewSMTPSender(cfg.smtp)
		if err != nil {
			log.Fatalf("smtp sender: %v", err)
		}
	} else {
		log.Println("INKWELL_SMTP_HOST not set, logging outbound mail")
		sender = mail.LogSender{}
	}

	api, err := httpapi.New(httpapi.Config{
		Version:     version,
		BaseURL:     cfg.baseURL,
		ReadyProbe:  httpapi.ReadyProbe{DB: db},
		Sessions:    sessions,
		Actions:     actions,
		Resolver:    resolver,
		Users:       users,
		Memberships: memberships,
		Keys:        keys,
		Content:     contentSvc,
		Sender:      sender,
	})
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting inkwell-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
