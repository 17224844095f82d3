/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the commerce core.
// These values are loaded from environment variables.
type Config struct {
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	EventExchange                string `mapstructure:"EVENT_EXCHANGE"`
	PaymentAPIBaseURL            string `mapstructure:"PAYMENT_API_BASE_URL"`
	PaymentAPIKey                string `mapstructure:"PAYMENT_API_KEY"`
	CatalogServiceURL            string `mapstructure:"CATALOG_SERVICE_URL"`
	CatalogInternalAPIKey        string `mapstructure:"CATALOG_INTERNAL_API_KEY"`
	Currency                     string `mapstructure:"CURRENCY"`
	CoinsPerCurrencyUnit         int64  `mapstructure:"COINS_PER_CURRENCY_UNIT"`
	MinimumConfidence            int    `mapstructure:"MINIMUM_CONFIDENCE"`
	PurchaseRateLimitPerMinute   int    `mapstructure:"PURCHASE_RATE_LIMIT_PER_MINUTE"`
	ReconcileSchedule            string `mapstructure:"RECONCILE_SCHEDULE"`
	RecommendationRandomMode     bool   `mapstructure:"RECOMMENDATION_RANDOM_MODE"`
	RecommendationRandomSeed     int64  `mapstructure:"RECOMMENDATION_RANDOM_SEED"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "marketplace:rate_limit")
	viper.SetDefault("EVENT_EXCHANGE", "marketplace.events")
	viper.SetDefault("CURRENCY", "NGN")
	viper.SetDefault("COINS_PER_CURRENCY_UNIT", 100)
	viper.SetDefault("MINIMUM_CONFIDENCE", 50)
	viper.SetDefault("PURCHASE_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("RECONCILE_SCHEDULE", "*/5 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "MARKETPLACE_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("PAYMENT_API_BASE_URL")
	_ = viper.BindEnv("PAYMENT_API_KEY")
	_ = viper.BindEnv("CATALOG_SERVICE_URL")
	_ = viper.BindEnv("CATALOG_INTERNAL_API_KEY", "CATALOG_INTERNAL_API_KEY", "INTERNAL_API_KEY")
	_ = viper.BindEnv("CURRENCY")
	_ = viper.BindEnv("COINS_PER_CURRENCY_UNIT")
	_ = viper.BindEnv("MINIMUM_CONFIDENCE")
	_ = viper.BindEnv("PURCHASE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("RECOMMENDATION_RANDOM_MODE")
	_ = viper.BindEnv("RECOMMENDATION_RANDOM_SEED")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "marketplace:rate_limit"
	}
	config.CatalogInternalAPIKey = strings.TrimSpace(config.CatalogInternalAPIKey)

	if config.CoinsPerCurrencyUnit <= 0 {
		log.Printf("level=warn component=config msg=\"invalid coins-per-unit configured; using default\" coins_per_unit=%d", config.CoinsPerCurrencyUnit)
		config.CoinsPerCurrencyUnit = 100
	}
	if config.MinimumConfidence < 0 {
		log.Printf("level=warn component=config msg=\"negative minimum confidence configured; coercing to zero\" minimum_confidence=%d", config.MinimumConfidence)
		config.MinimumConfidence = 0
	}
	if config.MinimumConfidence > 100 {
		log.Printf("level=warn component=config msg=\"minimum confidence too high; capping at 100\" minimum_confidence=%d", config.MinimumConfidence)
		config.MinimumConfidence = 100
	}
	if config.PurchaseRateLimitPerMinute < 0 {
		config.PurchaseRateLimitPerMinute = 0
	}
	if strings.TrimSpace(config.ReconcileSchedule) == "" {
		config.ReconcileSchedule = "*/5 * * * *"
	}

	return
}
