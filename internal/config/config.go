package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr             string
	MinIncrement     int64
	DefaultBasePrice int64
	PresenceTimeout  time.Duration
	RetireGrace      time.Duration
	SubscriberBuffer int
	CatalogPath      string
	Catalog          Catalog
}

// Catalog is the static item list: which auctions exist and their base
// prices. Amounts are integer minor-currency units.
type Catalog struct {
	Items []Item `yaml:"items"`
}

type Item struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	BasePrice int64  `yaml:"base_price"`
}

func (c Catalog) Find(id string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Load reads configuration from the environment plus the item catalog file.
// A missing catalog file is not an error; the registry then prices every
// auction at the default base price.
func Load() (Config, error) {
	cfg := Config{
		Addr:             getEnv("ADDR", ":8080"),
		MinIncrement:     getEnvAsInt64("BID_MIN_INCREMENT", 1000),
		DefaultBasePrice: getEnvAsInt64("DEFAULT_BASE_PRICE", 0),
		PresenceTimeout:  getEnvAsDuration("PRESENCE_TIMEOUT", 30*time.Second),
		RetireGrace:      getEnvAsDuration("ROOM_RETIRE_GRACE", 2*time.Minute),
		SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 32),
		CatalogPath:      getEnv("CATALOG_PATH", "catalog.yaml"),
	}

	data, err := os.ReadFile(cfg.CatalogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read catalog file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg.Catalog); err != nil {
		return Config{}, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return cfg, nil
}

// BasePriceFor resolves the base price for an auction id, falling back to
// the default for ids outside the catalog.
func (c Config) BasePriceFor(auctionID string) int64 {
	if item, ok := c.Catalog.Find(auctionID); ok {
		return item.BasePrice
	}
	return c.DefaultBasePrice
}
