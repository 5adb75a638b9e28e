package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/resi-labs-ai/resi-labs-api/internal/config"
)

func parseFlags() (string, string, error) {
	configFile := flag.String("config", "", "path to config file")
	dataDir := flag.String("data-dir", "", "path to data directory")
	flag.Parse()

	configPath, baseDir, err := resolveConfigPath(*configFile)
	if err != nil {
		return "", "", err
	}

	if *dataDir == "" {
		*dataDir = filepath.Join(baseDir, "data")
	}

	return configPath, *dataDir, nil
}

func resolveConfigPath(configFile string) (string, string, error) {
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return "", "", err
		}
		return abs, filepath.Dir(abs), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", err
	}
	baseDir := filepath.Join(home, ".resi-labs-api")
	return filepath.Join(baseDir, "config.yml"), baseDir, nil
}

// applyDataDirDefaults fills in any file paths the config left blank with
// locations under the resolved data directory, so a bare config.yml with
// no explicit state_file/alerts state_file still has somewhere to write.
func applyDataDirDefaults(cfg *config.Config, dataDir string) {
	if cfg.Advanced.StateFile == "" {
		cfg.Advanced.StateFile = filepath.Join(dataDir, "chain-snapshot.json")
	}
	if cfg.Alerts.StateFile == "" {
		cfg.Alerts.StateFile = filepath.Join(dataDir, "alerts-state.json")
	}
}
