// Package config loads the service configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	AppPort        string
	DatabaseDriver string
	DatabaseDSN    string
	JWTSecret      string
	RabbitMQURL    string
	Currency       string
	ClientURL      string
	SeedCatalog    bool

	Razorpay RazorpayConfig
	Wallet   WalletConfig
	Loyalty  LoyaltyConfig

	GatewayTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// RazorpayConfig holds card processor credentials.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

// WalletConfig holds e-wallet API settings.
type WalletConfig struct {
	APIURL        string
	SecretKey     string
	CallbackToken string
	ChannelCode   string
}

// LoyaltyConfig controls the gift coupon granted after large orders.
type LoyaltyConfig struct {
	Threshold  int64 // minor units
	Percentage int
	TTL        time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=storefront port=5432 sslmode=disable")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("CURRENCY", "PHP")
	v.SetDefault("CLIENT_URL", "http://localhost:5173")
	v.SetDefault("SEED_CATALOG", false)
	v.SetDefault("WALLET_API_URL", "https://api.xendit.co")
	v.SetDefault("WALLET_CHANNEL_CODE", "PH_GCASH")
	v.SetDefault("PAYMENT_GATEWAY_TIMEOUT", "10s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOYALTY_THRESHOLD", 20000)
	v.SetDefault("LOYALTY_PERCENTAGE", 10)
	v.SetDefault("LOYALTY_TTL", "720h")
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		AppPort:        v.GetString("APP_PORT"),
		DatabaseDriver: v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:    v.GetString("DATABASE_DSN"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		RabbitMQURL:    v.GetString("RABBITMQ_URL"),
		Currency:       v.GetString("CURRENCY"),
		ClientURL:      v.GetString("CLIENT_URL"),
		SeedCatalog:    v.GetBool("SEED_CATALOG"),
		Razorpay: RazorpayConfig{
			KeyID:     v.GetString("RAZORPAY_KEY"),
			KeySecret: v.GetString("RAZORPAY_SECRET"),
		},
		Wallet: WalletConfig{
			APIURL:        v.GetString("WALLET_API_URL"),
			SecretKey:     v.GetString("WALLET_SECRET_KEY"),
			CallbackToken: v.GetString("WALLET_CALLBACK_TOKEN"),
			ChannelCode:   v.GetString("WALLET_CHANNEL_CODE"),
		},
		Loyalty: LoyaltyConfig{
			Threshold:  v.GetInt64("LOYALTY_THRESHOLD"),
			Percentage: v.GetInt("LOYALTY_PERCENTAGE"),
			TTL:        v.GetDuration("LOYALTY_TTL"),
		},
		GatewayTimeout:  v.GetDuration("PAYMENT_GATEWAY_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.JWTSecret == "":
		return errors.New("JWT_SECRET is required")
	case c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite":
		return errors.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	case c.GatewayTimeout <= 0:
		return errors.New("PAYMENT_GATEWAY_TIMEOUT must be positive")
	case c.Loyalty.Percentage < 0 || c.Loyalty.Percentage > 100:
		return errors.Errorf("LOYALTY_PERCENTAGE must be within 0..100, got %d", c.Loyalty.Percentage)
	case len(c.Currency) != 3:
		return errors.Errorf("CURRENCY must be an ISO 4217 code, got %q", c.Currency)
	}
	return nil
}

// PurchaseSuccessURL is where providers send the customer after paying.
func (c *Config) PurchaseSuccessURL() string {
	return c.ClientURL + "/purchase-success"
}

// PurchaseFailedURL is where providers send the customer after a failure.
func (c *Config) PurchaseFailedURL() string {
	return c.ClientURL + "/purchase-cancel"
}
