package main

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"davmigrate/pkg/auth"
	"davmigrate/pkg/config"
	"davmigrate/pkg/database"
	"davmigrate/pkg/ledger"
	"davmigrate/pkg/logger"
)

// loadConfig loads the configuration, applies the global flags and
// initializes the process logger.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// openLedger connects to the database and makes sure the ledger table exists
func openLedger(ctx context.Context, cfg *config.Config) (*gorm.DB, *ledger.Store, error) {
	log := logger.GetLogger()

	db, err := database.Open(ctx, &cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}

	store := ledger.NewStore(db, cfg.Database.LedgerTable, cfg.Database.BatchSize, log)
	if err := store.Migrate(ctx); err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	return db, store, nil
}

// resolveCredentials fills an empty WebDAV password from the credential
// stores when an account name is configured.
func resolveCredentials(cfg *config.Config) error {
	dav := &cfg.Storage.WebDAV
	if cfg.Storage.Backend != "webdav" || dav.Password != "" || dav.Account == "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	account, err := manager.Retrieve(dav.Account)
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return fmt.Errorf("no stored credentials for account %q, run 'davmigrate auth login %s'", dav.Account, dav.Account)
		}
		return err
	}

	applyAccount(dav, account)
	logger.GetLogger().WithField("account", dav.Account).Debug("using stored webdav credentials")
	return nil
}

func applyAccount(dav *config.WebDAVConfig, account *auth.Account) {
	dav.Password = account.Password
	if dav.Username == "" {
		dav.Username = account.Username
	}
	if dav.URL == "" {
		dav.URL = account.URL
	}
}
