package config

import (
	"os"
	"strconv"
)

// InventoryConfig holds the three inventory feature toggles. With tracking
// disabled every ledger operation is a documented no-op.
type InventoryConfig struct {
	TrackingEnabled  bool
	ShortageWarnings bool
	// AllowNegativeStock is the authoritative shortage policy: when false a
	// consume that would drive stock negative fails the enclosing
	// transaction; when true it proceeds and the shortage is annotated on
	// the resulting document's delivery notes.
	AllowNegativeStock bool
}

// Config is assembled once at startup from the environment (configs/.env in
// development, real env in deployment).
type Config struct {
	Port        string
	DatabaseDSN string
	Inventory   InventoryConfig
}

func Load() Config {
	dbHost := getenv("DB_HOST", "localhost")
	dbPort := getenv("DB_PORT", "5432")
	dbUser := getenv("DB_USER", "postgres")
	dbPassword := getenv("DB_PASSWORD", "postgres")
	dbName := getenv("DB_NAME", "postgres")
	dbSslMode := getenv("DB_SSLMODE", "disable")

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	return Config{
		Port:        getenv("PORT", "8080"),
		DatabaseDSN: dsn,
		Inventory: InventoryConfig{
			TrackingEnabled:    getbool("INVENTORY_TRACKING_ENABLED", true),
			ShortageWarnings:   getbool("SHORTAGE_WARNINGS_ENABLED", true),
			AllowNegativeStock: getbool("ALLOW_NEGATIVE_STOCK", false),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
