package configuration

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"

	"ticketwatch/internal/admission"
	"ticketwatch/internal/client"
	"ticketwatch/internal/logger"
	"ticketwatch/internal/scanner"
	"ticketwatch/internal/watch"
)

const EnvPrefix = "TICKETWATCH"

const (
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	NotifierFCM      = "fcm"
	NotifierTelegram = "telegram"
	NotifierQueue    = "queue"
)

const (
	minScanInterval     = time.Minute
	defaultScanInterval = 5 * time.Minute
	defaultCacheTTL     = 5 * time.Minute
)

type Config struct {
	ServerAddress string
	StoreDriver   string
	DatabaseURI   string
	SQLitePath    string
	RedisAddress  string

	CatalogCacheTTL time.Duration
	ScanInterval    time.Duration
	ScanWorkers     int

	LogLevel  logger.Level
	LogToFile string

	Catalog            client.CatalogConfig
	FreeTierMaxWatches int

	Notifier       string
	AlertQueuePath string
	FCMKey         string `json:"-"`
	TelegramToken  string `json:"-"`

	AuthSecretKey   jwk.Key `json:"-"`
	AdminKeyHash    []byte  `json:"-"`
	ConfirmationTTL time.Duration
}

type tomlConfig struct {
	ServerAddress           string `toml:"server_address"`
	StoreDriver             string `toml:"store_driver"`
	DatabaseURI             string `toml:"database_uri"`
	SQLitePath              string `toml:"sqlite_path"`
	RedisAddress            string `toml:"redis_address"`
	CatalogCacheTTL         string `toml:"catalog_cache_ttl"`
	ScanInterval            string `toml:"scan_interval"`
	ScanWorkers             int    `toml:"scan_workers"`
	LogLevel                string `toml:"log_level"`
	LogToFile               string `toml:"log_to_file"`
	TicketmasterAPIKey      string `toml:"ticketmaster_api_key"`
	TicketmasterBaseURL     string `toml:"ticketmaster_base_url"`
	TicketmasterCountryCode string `toml:"ticketmaster_country_code"`
	CatalogTimeout          string `toml:"catalog_timeout"`
	FreeTierMaxWatches      int    `toml:"free_tier_max_watches"`
	Notifier                string `toml:"notifier"`
	AlertQueuePath          string `toml:"alert_queue_path"`
	FCMKey                  string `toml:"fcm_key"`
	TelegramToken           string `toml:"telegram_token"`
	AuthSecretKey           string `toml:"auth_secret_key"`
	AdminKeyHash            string `toml:"admin_key_hash"`
	ConfirmationTTL         string `toml:"confirmation_ttl"`
}

// envConfig holds the secrets that may come from the environment instead of the file,
// e.g. TICKETWATCH_AUTH_SECRET_KEY. Set variables take precedence.
type envConfig struct {
	TicketmasterAPIKey string `envconfig:"TICKETMASTER_API_KEY"`
	FCMKey             string `envconfig:"FCM_KEY"`
	TelegramToken      string `envconfig:"TELEGRAM_TOKEN"`
	AuthSecretKey      string `envconfig:"AUTH_SECRET_KEY"`
	AdminKeyHash       string `envconfig:"ADMIN_KEY_HASH"`
}

func GetConfig(path string) (*Config, error) {
	var tc tomlConfig
	_, err := toml.DecodeFile(path, &tc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode toml file with path: %s", path)
	}

	var ec envConfig
	if err = envconfig.Process(EnvPrefix, &ec); err != nil {
		return nil, errors.Wrap(err, "failed to read environment overrides")
	}
	override(&tc.TicketmasterAPIKey, ec.TicketmasterAPIKey)
	override(&tc.FCMKey, ec.FCMKey)
	override(&tc.TelegramToken, ec.TelegramToken)
	override(&tc.AuthSecretKey, ec.AuthSecretKey)
	override(&tc.AdminKeyHash, ec.AdminKeyHash)

	return tc.toConfig(path)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (tc tomlConfig) toConfig(path string) (*Config, error) {
	if tc.ServerAddress == "" {
		tc.ServerAddress = "localhost:8888"
	}

	if tc.StoreDriver == "" {
		tc.StoreDriver = StoreMongo
	}
	switch tc.StoreDriver {
	case StoreMongo:
		if tc.DatabaseURI == "" {
			tc.DatabaseURI = "mongodb://localhost:27017"
		}
	case StoreSQLite:
		if tc.SQLitePath == "" {
			tc.SQLitePath = "data/ticketwatch.db"
		}
	case StoreMemory:
	default:
		return nil, errors.Errorf("unknown store_driver: %q, expected one of mongo, sqlite, memory", tc.StoreDriver)
	}

	scanInterval, err := durationOr(tc.ScanInterval, defaultScanInterval, "scan_interval", path)
	if err != nil {
		return nil, err
	}
	if scanInterval < minScanInterval {
		return nil, errors.Errorf("scan_interval too short (%v), minimum interval: %v", scanInterval, minScanInterval)
	}

	cacheTTL, err := durationOr(tc.CatalogCacheTTL, defaultCacheTTL, "catalog_cache_ttl", path)
	if err != nil {
		return nil, err
	}
	catalogTimeout, err := durationOr(tc.CatalogTimeout, client.DefaultCatalogTimeout, "catalog_timeout", path)
	if err != nil {
		return nil, err
	}
	confirmationTTL, err := durationOr(tc.ConfirmationTTL, watch.DefaultTokenTTL, "confirmation_ttl", path)
	if err != nil {
		return nil, err
	}

	if tc.ScanWorkers <= 0 {
		tc.ScanWorkers = scanner.DefaultWorkers
	}
	if tc.FreeTierMaxWatches <= 0 {
		tc.FreeTierMaxWatches = admission.DefaultFreeMax
	}
	if tc.TicketmasterCountryCode == "" {
		tc.TicketmasterCountryCode = client.DefaultCountryCode
	}

	if tc.LogLevel == "" {
		tc.LogLevel = logger.LevelInfo.String()
	}
	logLevel, err := logger.ParseLevel(tc.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse log_level in: %s", path)
	}

	if tc.Notifier == "" {
		tc.Notifier = NotifierQueue
	}
	switch tc.Notifier {
	case NotifierFCM:
		if tc.FCMKey == "" {
			return nil, errors.New("fcm_key is not set, required by notifier fcm")
		}
	case NotifierTelegram:
		if tc.TelegramToken == "" {
			return nil, errors.New("telegram_token is not set, required by notifier telegram")
		}
	case NotifierQueue:
		if tc.AlertQueuePath == "" {
			tc.AlertQueuePath = "data/alert_queue.jsonl"
		}
	default:
		return nil, errors.Errorf("unknown notifier: %q, expected one of fcm, telegram, queue", tc.Notifier)
	}

	if tc.AuthSecretKey == "" {
		return nil, errors.New("auth_secret_key is not set")
	}
	authSecretKey, err := jwk.FromRaw([]byte(tc.AuthSecretKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create key from auth_secret_key")
	}

	var adminKeyHash []byte
	if tc.AdminKeyHash != "" {
		if !strings.HasPrefix(tc.AdminKeyHash, "$2") {
			return nil, errors.New("admin_key_hash must be a bcrypt hash")
		}
		adminKeyHash = []byte(tc.AdminKeyHash)
	}

	return &Config{
		ServerAddress:   tc.ServerAddress,
		StoreDriver:     tc.StoreDriver,
		DatabaseURI:     tc.DatabaseURI,
		SQLitePath:      tc.SQLitePath,
		RedisAddress:    tc.RedisAddress,
		CatalogCacheTTL: cacheTTL,
		ScanInterval:    scanInterval,
		ScanWorkers:     tc.ScanWorkers,
		LogLevel:        logLevel,
		LogToFile:       tc.LogToFile,
		Catalog: client.CatalogConfig{
			APIKey:      tc.TicketmasterAPIKey,
			BaseURL:     tc.TicketmasterBaseURL,
			CountryCode: tc.TicketmasterCountryCode,
			Timeout:     catalogTimeout,
		},
		FreeTierMaxWatches: tc.FreeTierMaxWatches,
		Notifier:           tc.Notifier,
		AlertQueuePath:     tc.AlertQueuePath,
		FCMKey:             tc.FCMKey,
		TelegramToken:      tc.TelegramToken,
		AuthSecretKey:      authSecretKey,
		AdminKeyHash:       adminKeyHash,
		ConfirmationTTL:    confirmationTTL,
	}, nil
}

func durationOr(s string, def time.Duration, key string, path string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s in: %s", key, path)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive, got: %v", key, d)
	}
	return d, nil
}
