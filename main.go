package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"doctools/cmd"
	"doctools/internal/config"
	"doctools/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Commands that need the configuration load and validate it themselves;
	// here it only configures logging.
	cfg, err := config.Load()
	if err != nil {
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting doctools")

	cmd.Execute()

	log.Debug().Msg("doctools shutdown")
	os.Exit(0)
}
