package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	DB struct {
		Host     string `validate:"required"`
		Port     int    `validate:"required,min=1,max=65535"`
		User     string `validate:"required"`
		Password string
		Name     string `validate:"required"`
		SSLMode  string `validate:"required,oneof=disable allow prefer require verify-ca verify-full"`
	}
	Redis struct {
		Addr     string `validate:"required"`
		Password string
		DB       int `validate:"min=0"`
	}
	Broker struct {
		// PageSize bounds one ListTriggers page during reconciliation.
		PageSize int `validate:"min=1,max=1000"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.DB.Host = getenv("DB_HOST", "localhost")
	c.DB.Port = getenvInt("DB_PORT", 5432)
	c.DB.User = getenv("DB_USER", "jobkeeper")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = getenv("DB_NAME", "jobkeeper")
	c.DB.SSLMode = getenv("DB_SSLMODE", "disable")
	c.Redis.Addr = getenv("REDIS_ADDR", "localhost:6379")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = getenvInt("REDIS_DB", 0)
	c.Broker.PageSize = getenvInt("BROKER_PAGE_SIZE", 100)
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/jobkeeper.log")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
