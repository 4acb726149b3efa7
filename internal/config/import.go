package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PlatformName is the sensor platform key recognized during YAML import.
const PlatformName = "populartimes"

// Notifier delivers a one-time user-facing notification after an import.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// sensorPlatform is one entry under the legacy "sensor:" YAML list.
type sensorPlatform struct {
	Platform string `yaml:"platform"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
}

// yamlConfig is the subset of the legacy configuration file we import from.
type yamlConfig struct {
	Sensor []sensorPlatform `yaml:"sensor"`
}

// ImportYAML migrates populartimes sensor platforms from the legacy YAML
// configuration into the store. Entries whose address is already configured
// are skipped silently, so the import is idempotent across restarts. Each
// newly imported entry raises one persistent notification. Returns the
// number of entries imported.
func ImportYAML(ctx context.Context, path string, store *Store, notifier Notifier, logger *zap.Logger) (int, error) {
	logger = logger.Named("import")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("No YAML configuration to import", zap.String("path", path))
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read YAML configuration: %w", err)
	}

	var cfg yamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	imported := 0
	for _, platform := range cfg.Sensor {
		if platform.Platform != PlatformName {
			continue
		}

		entry, err := NewEntry(platform.Name, platform.Address, SourceImport)
		if err != nil {
			logger.Warn("Skipping invalid YAML sensor entry",
				zap.String("name", platform.Name),
				zap.Error(err))
			continue
		}

		if err := store.Add(entry); err != nil {
			if errors.Is(err, ErrAlreadyConfigured) {
				logger.Debug("YAML import skipped; entry already exists",
					zap.String("address", entry.Address))
				continue
			}
			return imported, err
		}

		imported++
		logger.Info("Imported YAML sensor entry",
			zap.String("id", entry.ID),
			zap.String("name", entry.Name))

		message := fmt.Sprintf(
			"Imported '%s' from YAML to the managed config store. You can now remove it from the YAML configuration.",
			entry.Name)
		if err := notifier.Notify(ctx, "Popular Times migrated", message); err != nil {
			logger.Warn("Failed to send import notification", zap.Error(err))
		}
	}

	return imported, nil
}
