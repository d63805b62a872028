package main

import (
	"log"
	"os"

	"github.com/pety02/hotelreservation/internal/app"
	"github.com/pety02/hotelreservation/internal/config"
	"github.com/pety02/hotelreservation/internal/logger"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err.Error())
	}

	zl, err := logger.Build(conf.LogLevel, conf.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err.Error())
	}

	l := logger.New(zl)

	var exitCode int

	if err := app.Run(l, conf); err != nil {
		l.LogErrorf("Failed to run app: %v", err.Error())

		exitCode = 1
	}

	_ = l.Sync()

	os.Exit(exitCode)
}
