package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/spf13/pflag"

	"ticketwatch/internal/admission"
	"ticketwatch/internal/client"
	"ticketwatch/internal/configuration"
	"ticketwatch/internal/logger"
	"ticketwatch/internal/matcher"
	"ticketwatch/internal/scanner"
	"ticketwatch/internal/server"
	"ticketwatch/internal/watch"
)

type flags struct {
	configPath string
	once       bool
	issueToken string
	tokenTTL   time.Duration
}

func main() {
	var f flags
	pflag.StringVarP(&f.configPath, "config", "c", "config.toml", "path to the TOML configuration file")
	pflag.BoolVar(&f.once, "once", false, "run one scan cycle, print the result as JSON and exit")
	pflag.StringVar(&f.issueToken, "issue-token", "", "print an API bearer token for this user id and exit")
	pflag.DurationVar(&f.tokenTTL, "token-ttl", server.DefaultUserTokenTTL, "lifetime of the token printed by --issue-token")
	pflag.Parse()

	if err := runApp(f); err != nil {
		os.Exit(1)
	}
}

func runApp(f flags) error {
	appContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logOutput := io.Writer(os.Stderr)
	appLogger := logger.NewLogger(logger.LevelInfo, logOutput)

	defer func() {
		if r := recover(); r != nil {
			appLogger.Errorf("APPLICATION CRASHED: %+v", r)
		}
	}()

	config, err := configuration.GetConfig(f.configPath)
	if err != nil {
		appLogger.Errorf("Error getting configuration from %s: %v", f.configPath, err)
		return err
	}

	if config.LogToFile != "" {
		logFile, err := os.OpenFile(config.LogToFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			appLogger.Errorf("Error opening log file: %v", err)
			return err
		}
		defer func() {
			if err := logFile.Close(); err != nil {
				appLogger.Errorf("Error closing log file: %v", err)
			}
		}()
		logOutput = io.MultiWriter(logOutput, logFile)
	}
	appLogger = logger.NewLogger(config.LogLevel, logOutput)
	defer func() { _ = appLogger.Sync() }()

	if config.LogLevel == logger.LevelDebug {
		conf, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			appLogger.Errorf("Error marshalling Config to JSON: %v", err)
			return err
		}
		appLogger.Debugf("Config:\n%s", conf)
	}

	if f.issueToken != "" {
		lt, exp, err := server.IssueUserToken(config.AuthSecretKey, f.issueToken, f.tokenTTL)
		if err != nil {
			appLogger.Errorf("Error issuing token: %v", err)
			return err
		}
		appLogger.Infof("Issued token for UserID: %s, expires: %s", f.issueToken, exp.Format(time.RFC3339))
		fmt.Println(lt)
		return nil
	}

	store, closeStore, err := openStore(appContext, config, appLogger)
	if err != nil {
		appLogger.Errorf("Error opening %s store: %v", config.StoreDriver, err)
		return err
	}
	defer closeStore()

	catalog := client.NewCatalog(config.Catalog, appLogger)
	var rdb *redis.Client
	if config.RedisAddress != "" {
		rdb = redis.NewClient(&redis.Options{Addr: config.RedisAddress})
		if err = rdb.Ping(appContext).Err(); err != nil {
			appLogger.Errorf("Error connecting to Redis at %s: %v", config.RedisAddress, err)
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				appLogger.Errorf("Error closing Redis client: %v", err)
			}
		}()
		appLogger.Infof("Caching catalog lookups in Redis at %s for %v", config.RedisAddress, config.CatalogCacheTTL)
		catalog = client.NewCachedCatalog(catalog, rdb, config.CatalogCacheTTL, appLogger)
	}

	notifier, err := newNotifier(config, appLogger)
	if err != nil {
		appLogger.Errorf("Error creating %s notifier: %v", config.Notifier, err)
		return err
	}

	engine := matcher.NewEngine(store, catalog, notifier, appLogger)
	sched := scanner.New(store, engine, config.ScanWorkers, appLogger)
	if rdb != nil {
		sched.Lock = scanner.NewRedisLock(rdb)
	}

	if f.once {
		return runOnce(appContext, sched, appLogger)
	}

	srv := server.Server{
		Watches: &watch.Service{
			Store:   store,
			Catalog: catalog,
			Checker: engine,
			Policy:  admission.NewPolicy(config.FreeTierMaxWatches),
			Tokens:  watch.NewTokens(config.AuthSecretKey, config.ConfirmationTTL),
			Logger:  appLogger,
		},
		Scanner:       sched,
		Logger:        appLogger,
		AuthSecretKey: config.AuthSecretKey,
		AdminKeyHash:  config.AdminKeyHash,
	}
	if len(config.AdminKeyHash) == 0 {
		appLogger.Warnf("admin_key_hash is not set, admin routes are disabled")
	}

	appLogger.Infof("Starting scan loop with interval: %v, workers: %d", config.ScanInterval, config.ScanWorkers)
	go sched.Run(appContext, config.ScanInterval)

	httpSrv := &http.Server{
		Handler:      srv.Router(),
		Addr:         config.ServerAddress,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		<-appContext.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			appLogger.Errorf("Error shutting down HTTP server: %v", err)
		}
	}()

	appLogger.Infof("Serving on %s", httpSrv.Addr)
	if err = httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		appLogger.Errorf("Error serving HTTP: %v", err)
		return err
	}
	return nil
}

// runOnce prints one cycle's outcome on stdout, for cron.
func runOnce(ctx context.Context, sched *scanner.Scheduler, l *logger.Logger) error {
	type output struct {
		Timestamp time.Time           `json:"timestamp"`
		Status    string              `json:"status"`
		Result    *scanner.ScanResult `json:"result,omitempty"`
		Error     string              `json:"error,omitempty"`
	}

	res, err := sched.Scan(ctx)
	out := output{Timestamp: time.Now().UTC(), Status: "ok"}
	if err != nil {
		l.Errorf("runOnce: scan failed, err: %v", err)
		out.Status = "error"
		out.Error = err.Error()
	} else {
		out.Result = &res
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(out); encErr != nil {
		l.Errorf("runOnce: Error encoding result, err: %v", encErr)
		return encErr
	}
	return err
}
