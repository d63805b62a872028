package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverFile   = "file"
	DriverMemory = "memory"
)

type Config struct {
	DataDir                 string `validate:"required_if=StorageDriver file"`
	StorageDriver           string `validate:"required,oneof=file memory"`
	LogLevel                string `validate:"required,oneof=debug info warn error"`
	LogDevelopment          bool
	AvailabilityHorizonDays int `validate:"gte=1,lte=3650"`
	SeedOnStart             bool
	SeedHotelName           string `validate:"required_if=SeedOnStart true"`
	SeedHotelAddress        string
}

// Load reads the configuration from the environment. A .env file in the working directory
// is loaded first when present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	conf := &Config{
		DataDir:                 getEnv("DATA_DIR", "data"),
		StorageDriver:           getEnv("STORAGE_DRIVER", DriverFile),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogDevelopment:          getEnvAsBool("LOG_DEVELOPMENT", false),
		AvailabilityHorizonDays: getEnvAsInt("AVAILABILITY_HORIZON_DAYS", 365), //nolint:gomnd
		SeedOnStart:             getEnvAsBool("SEED_ON_START", true),
		SeedHotelName:           getEnv("SEED_HOTEL_NAME", "Sirma Grand Hotel"),
		SeedHotelAddress:        getEnv("SEED_HOTEL_ADDRESS", "135 Tsarigradsko Shose Blvd, Sofia"),
	}

	if err := validator.New().Struct(conf); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return conf, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}

	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}

	return defaultValue
}
