package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clubhub-backend/internal/config"
	"clubhub-backend/internal/store"
	"clubhub-backend/internal/store/memory"
	pgstore "clubhub-backend/internal/store/postgres"
)

// OpenStore builds the persistence provider named by cfg.StorageDriver.
func OpenStore(cfg config.Config, log *logrus.Entry) (store.Store, error) {
	if cfg.StorageDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := InitDB(cfg.DB, cfg.Env)
	if err != nil {
		return nil, err
	}
	st := pgstore.NewStore(db, log.WithField("component", "postgres"))
	if err := st.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database connected and migrated")
	return st, nil
}

func InitDB(cfg config.DB, env string) (*gorm.DB, error) {
	level := logger.Warn
	if env == config.EnvLocal {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}
