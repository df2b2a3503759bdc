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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"document", "page"}, cfg.DocumentTypeNames())
	assert.False(t, cfg.GC)
}

func TestLoadConfig(t *testing.T) {
	t.Run("no file uses defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := writeConfig(t, "versiondiff.yaml", `
content_root: body
document_types:
  note: [body]
default_document_type: note
history_concurrency: 2
gc: true
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "body", cfg.ContentRoot)
		assert.Equal(t, []string{"body"}, cfg.DocumentTypes["note"])
		assert.Equal(t, "note", cfg.DefaultDocumentType)
		assert.Equal(t, 2, cfg.HistoryConcurrency)
		assert.True(t, cfg.GC)
		assert.Equal(t, "users", cfg.IdentityRoot)
	})

	t.Run("json file", func(t *testing.T) {
		path := writeConfig(t, "versiondiff.json", `{"history_concurrency": 8}`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.HistoryConcurrency)
	})

	t.Run("unparsable file", func(t *testing.T) {
		path := writeConfig(t, "bad.yaml", "history_concurrency: [")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, "versiondiff.yaml", "history_concurrency: 2\n")
		t.Setenv("VERSIONDIFF_HISTORY_CONCURRENCY", "6")
		t.Setenv("VERSIONDIFF_GC", "1")
		t.Setenv("VERSIONDIFF_IDENTITY_ROOT", "people")
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.HistoryConcurrency)
		assert.True(t, cfg.GC)
		assert.Equal(t, "people", cfg.IdentityRoot)
	})

	t.Run("invalid env value is ignored", func(t *testing.T) {
		t.Setenv("VERSIONDIFF_HISTORY_CONCURRENCY", "many")
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.HistoryConcurrency)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty content root", func(c *Config) { c.ContentRoot = "" }},
		{"identity root equals content root", func(c *Config) { c.IdentityRoot = c.ContentRoot }},
		{"no document types", func(c *Config) { c.DocumentTypes = nil }},
		{"document type without roots", func(c *Config) { c.DocumentTypes["empty"] = nil }},
		{"document type with blank root", func(c *Config) { c.DocumentTypes["blank"] = []string{""} }},
		{"unknown default type", func(c *Config) { c.DefaultDocumentType = "memo" }},
		{"identity root in scope", func(c *Config) { c.DocumentTypes["leaky"] = []string{"users"} }},
		{"zero concurrency", func(c *Config) { c.HistoryConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
