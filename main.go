package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"clubhub-backend/internal/config"
)

func setupLogger(env string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	switch env {
	case config.EnvLocal:
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true})
	case config.EnvDev:
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	default:
		log.SetLevel(logrus.WarnLevel)
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(log).WithField("service", "clubhub")
}

func main() {
	cfg, missing, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}

	log := setupLogger(cfg.Env)
	for _, f := range missing {
		log.Warnf("%s not found, using system environment variables", f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := OpenStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}

	app := NewApp(st, cfg, log)
	if cfg.BootstrapSuperadminEmail != "" {
		if _, err := app.Accounts.BootstrapSuperadmin(ctx, cfg.BootstrapSuperadminEmail); err != nil {
			log.WithError(err).Fatal("failed to bootstrap superadmin")
		}
	}

	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log), CORSMiddleware(cfg.CORSAllowedOrigin))
	SetupRoutes(r, app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}
