package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rxtech-lab/argo-strategy/internal/config"
)

const (
	schemaName       = "strategy-config.json"
	sampleConfigName = "strategy-config.yaml"
)

func main() {
	schemaPath := filepath.Join("./config", schemaName)
	sampleConfigPath := filepath.Join("./config", sampleConfigName)

	if err := validatePaths(schemaPath, sampleConfigPath); err != nil {
		log.Fatalf("Invalid output paths: %v", err)
	}

	if err := validateSchemaName(schemaName); err != nil {
		log.Fatalf("Invalid schema name: %v", err)
	}

	sample := config.Sample()

	if err := generateSchemaFile(sample, schemaPath); err != nil {
		log.Fatalf("Failed to generate schema: %v", err)
	}

	log.Printf("Schema successfully generated at %s", schemaPath)

	if err := generateSampleConfig(sample, sampleConfigPath, schemaName); err != nil {
		log.Fatalf("Failed to generate sample config: %v", err)
	}
}

// generateSchemaFile writes the JSON schema of strategy documents to path.
// The schema does not depend on cfg; it is taken to keep both generators
// symmetric.
func generateSchemaFile(_ config.StrategyConfig, path string) error {
	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}

	return nil
}

// generateSampleConfig writes cfg as YAML to path with a schema reference
// for the yaml language server. An existing file is left untouched.
func generateSampleConfig(cfg config.StrategyConfig, path string, schema string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat sample config: %w", err)
	}

	yamlBytes, err := cfg.Marshal(config.FormatYAML)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config to yaml: %w", err)
	}

	yamlBytes = append([]byte(getSchemaReference(schema)), yamlBytes...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config to file: %w", err)
	}

	log.Printf("Sample config successfully generated at %s", path)

	return nil
}

func validatePaths(schemaPath, sampleConfigPath string) error {
	if schemaPath == "" {
		return fmt.Errorf("schema path cannot be empty")
	}

	if sampleConfigPath == "" {
		return fmt.Errorf("sample config path cannot be empty")
	}

	return nil
}

func validateSchemaName(name string) error {
	if name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}

	if !strings.HasSuffix(name, ".json") {
		return fmt.Errorf("schema name %q must have .json extension", name)
	}

	return nil
}

func getSchemaReference(schema string) string {
	return "# yaml-language-server: $schema=" + schema + "\n"
}
