// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package versiondiff

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/trackchanges/services/versiondiff/content"
	"github.com/AleutianAI/trackchanges/services/versiondiff/identity"
)

// Config controls diff computation.
type Config struct {
	// ContentRoot is the root read by content extraction.
	ContentRoot string `yaml:"content_root" json:"content_root" validate:"required"`

	// IdentityRoot is the root holding the permanent identity directory.
	IdentityRoot string `yaml:"identity_root" json:"identity_root" validate:"required,nefield=ContentRoot"`

	// DocumentTypes maps a document type to the roots whose changes count
	// toward attribution.
	DocumentTypes map[string][]string `yaml:"document_types" json:"document_types" validate:"required,min=1,dive,keys,required,endkeys,min=1,dive,required"`

	// DefaultDocumentType is used when a caller passes an empty type.
	DefaultDocumentType string `yaml:"default_document_type" json:"default_document_type" validate:"required"`

	// GC enables garbage collection on diff replicas. Attribution of
	// deletions inside removed containers needs it off.
	GC bool `yaml:"gc" json:"gc"`

	// HistoryConcurrency bounds the diffs DiffHistory runs at once.
	HistoryConcurrency int `yaml:"history_concurrency" json:"history_concurrency" validate:"min=1,max=256"`
}

var configValidate = validator.New()

// DefaultConfig returns the configuration for the standard document types.
func DefaultConfig() Config {
	return Config{
		ContentRoot:  content.DefaultRoot,
		IdentityRoot: identity.DefaultRoot,
		DocumentTypes: map[string][]string{
			"document": {content.DefaultRoot},
			"page":     {content.DefaultRoot, "title"},
		},
		DefaultDocumentType: "document",
		GC:                  false,
		HistoryConcurrency:  4,
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to a YAML or JSON file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or the merged
//     configuration fails validation.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(config *Config) {
	if v := os.Getenv("VERSIONDIFF_CONTENT_ROOT"); v != "" {
		config.ContentRoot = v
	}
	if v := os.Getenv("VERSIONDIFF_IDENTITY_ROOT"); v != "" {
		config.IdentityRoot = v
	}
	if v := os.Getenv("VERSIONDIFF_DEFAULT_DOCUMENT_TYPE"); v != "" {
		config.DefaultDocumentType = v
	}
	if v := os.Getenv("VERSIONDIFF_GC"); v != "" {
		config.GC = v == "true" || v == "1"
	}
	if v := os.Getenv("VERSIONDIFF_HISTORY_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.HistoryConcurrency = i
		}
	}
}

// Validate checks field constraints and that the default document type
// is configured.
//
// Outputs:
//   - error: Wraps ErrInvalidConfig if the configuration is invalid.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, ok := c.DocumentTypes[c.DefaultDocumentType]; !ok {
		return fmt.Errorf("%w: default_document_type %q has no roots", ErrInvalidConfig, c.DefaultDocumentType)
	}
	for docType, roots := range c.DocumentTypes {
		if slices.Contains(roots, c.IdentityRoot) {
			return fmt.Errorf("%w: document type %q scopes the identity root %q", ErrInvalidConfig, docType, c.IdentityRoot)
		}
	}
	return nil
}

// DocumentTypeNames returns the configured document types, sorted.
func (c Config) DocumentTypeNames() []string {
	names := make([]string, 0, len(c.DocumentTypes))
	for name := range c.DocumentTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
