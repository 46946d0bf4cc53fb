package generator

import (
	"bytes"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"xray/internal/config"
	"xray/internal/config/logger"
)

const header = `# xray configuration
#
# Every field is optional; missing fields fall back to built-in defaults.
# Values can also be overridden through XRAY_* environment variables
# (XRAY_SERVER_PORT, XRAY_LOGGING_LEVEL, ...) or an .env file.
#
# Logs are retained without any eviction: the store grows until cleared.
`

// Generator defines the interface for generating xray.yaml
type Generator interface {
	Generate(force bool, dryRun bool) error
}

type generator struct {
	log logger.Logger
}

// NewGenerator creates a new generator instance
func NewGenerator(log logger.Logger) Generator {
	return &generator{
		log: log,
	}
}

// Generate writes an xray.yaml starter file with the default configuration
func (g *generator) Generate(force bool, dryRun bool) error {
	if !dryRun && !force {
		if _, err := os.Stat(config.FileName); err == nil {
			return fmt.Errorf("file %s already exists, use --force to overwrite", config.FileName)
		}
	}

	body, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to render defaults: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("\n")
	buf.Write(body)

	if dryRun {
		fmt.Print(buf.String())
		return nil
	}

	if err := os.WriteFile(config.FileName, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	g.log.Info().Msgf("Generated %s", config.FileName)

	return nil
}
