package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"ticketwatch/internal/client"
	"ticketwatch/internal/configuration"
	"ticketwatch/internal/database"
	"ticketwatch/internal/logger"
)

// openStore returns the configured store and a func that releases it.
func openStore(ctx context.Context, c *configuration.Config, l *logger.Logger) (database.Store, func(), error) {
	switch c.StoreDriver {
	case configuration.StoreMongo:
		l.Infof("Connecting to DB at %s", c.DatabaseURI)
		dbConn, err := database.ConnectDB(ctx, c.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := dbConn.Disconnect(context.Background()); err != nil {
				l.Errorf("Error disconnecting from DB: %v", err)
			}
		}
		db := database.Database{Database: dbConn.Database(database.Name)}
		if err = db.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return db, closeFn, nil
	case configuration.StoreSQLite:
		l.Infof("Opening SQLite store at %s", c.SQLitePath)
		db, err := database.OpenSQLite(ctx, c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				l.Errorf("Error closing SQLite store: %v", err)
			}
		}, nil
	case configuration.StoreMemory:
		l.Warnf("Using the in-memory store, nothing survives a restart")
		return database.NewMemory(), func() {}, nil
	}
	return nil, nil, errors.Errorf("unknown store driver: %s", c.StoreDriver)
}

func newNotifier(c *configuration.Config, l *logger.Logger) (client.Notifier, error) {
	switch c.Notifier {
	case configuration.NotifierFCM:
		return client.NewFCM(c.FCMKey, l), nil
	case configuration.NotifierTelegram:
		return client.NewTelegram(c.TelegramToken, "", &http.Client{Timeout: c.Catalog.Timeout}, l)
	case configuration.NotifierQueue:
		l.Infof("Writing alerts to %s", c.AlertQueuePath)
		return client.NewQueue(c.AlertQueuePath, l), nil
	}
	return nil, errors.Errorf("unknown notifier: %s", c.Notifier)
}
