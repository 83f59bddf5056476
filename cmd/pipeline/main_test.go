package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratevault/pipeline/internal/audit"
	"github.com/ratevault/pipeline/internal/model"
)

func TestParseStage(t *testing.T) {
	stage, err := parseStage("frn_matching")
	require.NoError(t, err)
	assert.Equal(t, model.StageFRNMatching, stage)

	_, err = parseStage("not_a_stage")
	assert.Error(t, err)
}

func TestAuditDetailFromEnv(t *testing.T) {
	t.Setenv("PIPELINE_AUDIT_ENABLED", "true")
	t.Setenv("PIPELINE_AUDIT_LEVEL", "verbose")
	assert.Equal(t, audit.DetailVerbose, auditDetailFromEnv())

	t.Setenv("PIPELINE_AUDIT_ENABLED", "false")
	assert.Equal(t, audit.DetailMinimal, auditDetailFromEnv(), "disabled audit maps to the lowest-cost level, not a separate off state")

	t.Setenv("PIPELINE_AUDIT_ENABLED", "true")
	t.Setenv("PIPELINE_AUDIT_LEVEL", "")
	assert.Equal(t, audit.DetailStandard, auditDetailFromEnv())
}

func TestDecodeFilesEmptyArgYieldsNoInputs(t *testing.T) {
	inputs, err := decodeFiles("")
	require.NoError(t, err)
	assert.Nil(t, inputs)
}

func TestDecodeFilesReadsAndDecodesEachPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.json")
	batchJSON := `{"metadata":{"source":"acme.example","method":"api"},"products":[]}`
	require.NoError(t, os.WriteFile(path, []byte(batchJSON), 0o600))

	inputs, err := decodeFiles(path)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, path, inputs[0].Path)
}

func TestDecodeFilesExpandsGlobPatterns(t *testing.T) {
	dir := t.TempDir()
	batchJSON := `{"metadata":{"source":"acme.example","method":"api"},"products":[]}`
	for _, name := range []string{"a.json", "b.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(batchJSON), 0o600))
	}

	inputs, err := decodeFiles(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
}

func TestDecodeFilesMissingFileErrors(t *testing.T) {
	_, err := decodeFiles("/no/such/file-xyz.json")
	assert.Error(t, err)
}

func TestLoadFileConfigEmptyPathReturnsZeroValue(t *testing.T) {
	cfg, err := loadFileConfig("")
	require.NoError(t, err)
	assert.Equal(t, fileConfig{}, cfg)
	assert.False(t, cfg.verboseDefault())
	assert.False(t, cfg.debugDefault())
}

func TestLoadFileConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("databasePath: /var/lib/ratevault/pipeline.db\nverbose: true\n"), 0o600))

	cfg, err := loadFileConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ratevault/pipeline.db", cfg.DatabasePath)
	assert.True(t, cfg.verboseDefault())
	assert.False(t, cfg.debugDefault())
}

func TestLoadFileConfigMissingFileErrors(t *testing.T) {
	_, err := loadFileConfig("/no/such/bootstrap.yaml")
	assert.Error(t, err)
}
