package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/internal/config"
	"github.com/lernio/gatekeeper/internal/database"
	"github.com/lernio/gatekeeper/internal/httpapi"
	"github.com/lernio/gatekeeper/internal/kvstore"
	"github.com/lernio/gatekeeper/mail"
	"github.com/lernio/gatekeeper/metrics/export/prometheus"
	"github.com/lernio/gatekeeper/password"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to YAML config file")
	bootstrap := flag.String("create-administrator", "", "create an ADMINISTRATOR account with this email, print its temporary password and exit")
	bootstrapName := flag.String("name", "Administrator", "full name used with -create-administrator")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.DatabaseOptions())
	if err != nil {
		logger.Fatal("failed to open database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer database.Close(db)

	engineCfg := cfg.Engine()
	if *bootstrap != "" {
		if err := createAdministrator(db, engineCfg, *bootstrap, *bootstrapName, logger); err != nil {
			logger.Fatal("failed to create administrator", zap.Error(err))
		}
		return
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	rdb, err := kvstore.Connect(startCtx, cfg.KVStore())
	cancelStart()
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	mailCfg := cfg.MailSender()
	transport, err := mail.NewTransport(mailCfg, logger)
	if err != nil {
		logger.Fatal("failed to configure mail transport", zap.Error(err))
	}
	sender, err := mail.NewSender(transport, mailCfg, logger)
	if err != nil {
		logger.Fatal("failed to configure mail sender", zap.Error(err))
	}

	sinks := []gatekeeper.AuditSink{gatekeeper.NewZapSink(logger)}
	if cfg.Audit.File != "" {
		f, err := os.OpenFile(cfg.Audit.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			logger.Fatal("failed to open audit log", zap.Error(err), zap.String("path", cfg.Audit.File))
		}
		defer f.Close()
		sinks = append(sinks, gatekeeper.NewJSONWriterSink(f))
	}

	engine, err := gatekeeper.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithAccounts(database.NewAccountRepository(db)).
		WithAdminRequests(database.NewAdminRequestRepository(db)).
		WithMailer(sender).
		WithAuditSink(sinks...).
		WithDatabasePing(func(ctx context.Context) error { return database.Ping(ctx, db) }).
		Build()
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}
	defer engine.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Options{
		Engine:         engine,
		Log:            logger.Named("http"),
		Production:     cfg.IsProduction(),
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        prometheus.NewPrometheusExporter(engine).Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited",
		zap.Uint64("audit_dropped", engine.AuditDropped()),
		zap.Uint64("notifications_dropped", engine.NotificationsDropped()),
	)
}

func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// createAdministrator seeds the first ADMINISTRATOR, who can then approve
// admin requests. The temporary password is printed once.
func createAdministrator(db *gorm.DB, cfg gatekeeper.Config, email, name string, logger *zap.Logger) error {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return err
	}
	temp, err := password.GenerateTemporary(cfg.AdminRequest.TempPasswordLength)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(temp)
	if err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := database.NewAccountRepository(db).CreateAccount(ctx, gatekeeper.RoleAdministrator, database.NewAccount{
		Email:        email,
		FullName:     name,
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}
	logger.Info("administrator created", zap.String("id", id), zap.String("email", email))
	_, err = os.Stdout.WriteString("temporary password: " + temp + "\n")
	return err
}
