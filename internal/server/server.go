// Package server is the HTTP API in front of the watch service and the scan scheduler.
package server

import (
	"context"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"ticketwatch/internal/scanner"
	"ticketwatch/internal/watch"
)

type Server struct {
	Watches *watch.Service
	Scanner scanRunner
	Logger  logger
	// AuthSecretKey verifies user bearer tokens.
	AuthSecretKey jwk.Key
	// AdminKeyHash is the bcrypt hash of the admin key. Admin routes are refused when it
	// is empty.
	AdminKeyHash []byte
}

type scanRunner interface {
	Scan(ctx context.Context) (scanner.ScanResult, error)
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}
