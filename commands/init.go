package commands

import (
	"context"
	"masterclock/config"
	"os"

	log "github.com/sirupsen/logrus"
)

// RunInit writes a configuration file with default settings unless one already exists.
func RunInit(ctx context.Context, cfg *config.Config, path string) {
	if _, err := os.Stat(path); err == nil {
		log.Fatalf("Config file %s already exists", path)
	}

	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}

	log.Infof("Wrote default config to %s", path)
}
