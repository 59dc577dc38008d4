package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type serverConfig struct {
	Addr          string
	DBPath        string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	GeoIPPath     string
	LogLevel      zerolog.Level
}

// loadConfig reads settings from the environment, after an optional .env file.
func loadConfig() serverConfig {
	_ = godotenv.Load()

	cfg := serverConfig{
		Addr:          getenv("QIBLA_ADDR", ":8080"),
		DBPath:        getenv("QIBLA_DB_PATH", "qibla.db"),
		MySQLDSN:      os.Getenv("QIBLA_MYSQL_DSN"),
		RedisAddr:     os.Getenv("QIBLA_REDIS_ADDR"),
		RedisPassword: os.Getenv("QIBLA_REDIS_PASSWORD"),
		GeoIPPath:     os.Getenv("QIBLA_GEOIP_PATH"),
		LogLevel:      zerolog.InfoLevel,
	}

	if db, err := strconv.Atoi(os.Getenv("QIBLA_REDIS_DB")); err == nil {
		cfg.RedisDB = db
	}
	if lvl, err := zerolog.ParseLevel(os.Getenv("QIBLA_LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		cfg.LogLevel = lvl
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
