package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/myshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/myshop/internal/service/shop"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Переменные окружения сервиса.
const (
	EnvHTTPAddr               = "MYSHOP_HTTP_ADDR"
	EnvMetricsAddr            = "MYSHOP_METRICS_ADDR"
	EnvStorageDriver          = "MYSHOP_STORAGE_DRIVER"
	EnvPostgresDSN            = "MYSHOP_POSTGRES_DSN"
	EnvPostgresAutoMigrate    = "MYSHOP_POSTGRES_AUTO_MIGRATE"
	EnvKafkaBrokers           = "KAFKA_BROKERS"
	EnvKafkaNotificationTopic = "MYSHOP_KAFKA_NOTIFICATIONS_TOPIC"
	EnvKafkaEventsTopic       = "MYSHOP_KAFKA_EVENTS_TOPIC"
	EnvKafkaConsumerGroup     = "MYSHOP_KAFKA_CONSUMER_GROUP"
	EnvKafkaMaxRetries        = "MYSHOP_KAFKA_MAX_RETRIES"
	EnvDefaultCurrency        = "MYSHOP_DEFAULT_CURRENCY"
	EnvFreeShippingThreshold  = "MYSHOP_FREE_SHIPPING_THRESHOLD"
	EnvFlatShippingCost       = "MYSHOP_FLAT_SHIPPING_COST"
	EnvDiscountThreshold      = "MYSHOP_DISCOUNT_THRESHOLD"
	EnvDiscountRate           = "MYSHOP_DISCOUNT_RATE"
	EnvShutdownTimeout        = "MYSHOP_SHUTDOWN_TIMEOUT"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// При пустом KafkaBrokers Kafka отключена: письма пишутся в лог, события не публикуются.
	KafkaBrokers            []string
	KafkaNotificationsTopic string
	KafkaEventsTopic        string
	KafkaConsumerGroup      string
	KafkaMaxRetries         int

	DefaultCurrency string
	Pricing         shop.PricingPolicy

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                ":8080",
		MetricsAddr:             ":9090",
		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		KafkaNotificationsTopic: kafka.TopicEmailNotifications,
		KafkaEventsTopic:        kafka.TopicOrderEvents,
		KafkaConsumerGroup:      "myshop-notifications",
		KafkaMaxRetries:         3,
		DefaultCurrency:         shop.DefaultCurrency,
		Pricing:                 shop.DefaultPricingPolicy(),
		ShutdownTimeout:         5 * time.Second,
	}
}

// KafkaEnabled сообщает, заданы ли брокеры Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address is required")
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%s is required for %s storage", EnvPostgresDSN, StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default currency must be a 3-letter code, got %q", c.DefaultCurrency)
	}
	if err := c.Pricing.Validate(); err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	return nil
}

// EnvLookup читает переменную окружения; сигнатура совпадает с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию,
// а причина попадает в список предупреждений.
func LoadConfigFromEnv(lookup EnvLookup) (Config, []error) {
	cfg := DefaultConfig()
	var warnings []error

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Errorf("%s=%q ignored: %w", key, raw, err))
	}

	readString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	readString(EnvHTTPAddr, &cfg.HTTPAddr)
	readString(EnvMetricsAddr, &cfg.MetricsAddr)
	readString(EnvPostgresDSN, &cfg.PostgresDSN)
	readString(EnvKafkaNotificationTopic, &cfg.KafkaNotificationsTopic)
	readString(EnvKafkaEventsTopic, &cfg.KafkaEventsTopic)
	readString(EnvKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	if v, ok := lookup(EnvStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	if v, ok := lookup(EnvPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warn(EnvPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	if v, ok := lookup(EnvKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}

	if v, ok := lookup(EnvKafkaMaxRetries); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0")
		if err != nil {
			warn(EnvKafkaMaxRetries, v, err)
		} else {
			cfg.KafkaMaxRetries = parsed
		}
	}

	if v, ok := lookup(EnvDefaultCurrency); ok && strings.TrimSpace(v) != "" {
		code := strings.ToUpper(strings.TrimSpace(v))
		if len(code) != 3 {
			warn(EnvDefaultCurrency, v, errors.New("must be a 3-letter code"))
		} else {
			cfg.DefaultCurrency = code
		}
	}

	nonNegative := func(d decimal.Decimal) bool { return !d.IsNegative() }
	readDecimal := func(key string, dst *decimal.Decimal, valid func(decimal.Decimal) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDecimal(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}

	readDecimal(EnvFreeShippingThreshold, &cfg.Pricing.FreeShippingThreshold, nonNegative, "must be >= 0")
	readDecimal(EnvFlatShippingCost, &cfg.Pricing.FlatShippingCost, nonNegative, "must be >= 0")
	readDecimal(EnvDiscountThreshold, &cfg.Pricing.DiscountThreshold, nonNegative, "must be >= 0")
	readDecimal(EnvDiscountRate, &cfg.Pricing.DiscountRate, func(d decimal.Decimal) bool {
		return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1))
	}, "must be between 0 and 1")

	if v, ok := lookup(EnvShutdownTimeout); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warn(EnvShutdownTimeout, v, err)
		} else {
			cfg.ShutdownTimeout = parsed
		}
	}

	return cfg, warnings
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, errors.New("invalid bool value")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDecimal(raw string, valid func(decimal.Decimal) bool, rule string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !valid(value) {
		return decimal.Decimal{}, errors.New(rule)
	}
	return value, nil
}
