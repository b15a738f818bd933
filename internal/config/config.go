package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	StoreDriver           string
	DatabaseURL           string
	SQLitePath            string
	DataFile              string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
}

// Load reads the environment. A .env file in the working directory fills in
// variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "20"))
	if err != nil || ttl < 1 {
		ttl = 20
	}

	cfg := Config{
		Port:                  getEnv("PORT", "3000"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "*"),
		StoreDriver:           strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER"))),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            os.Getenv("SQLITE_PATH"),
		DataFile:              os.Getenv("DATA_FILE"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportCacheTTLSeconds: ttl,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Driver returns the configured store driver. Without STORE_DRIVER it picks
// postgres when DATABASE_URL is set, then sqlite when SQLITE_PATH is set.
func (c Config) Driver() string {
	switch {
	case c.StoreDriver != "":
		return c.StoreDriver
	case c.DatabaseURL != "":
		return DriverPostgres
	case c.SQLitePath != "":
		return DriverSQLite
	default:
		return DriverMemory
	}
}

func (c Config) Validate() error {
	switch c.Driver() {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite driver")
		}
		return nil
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres driver")
		}
		return nil
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
