package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanbattle/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clanbattle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadConfig_NoFileNamed(t *testing.T) {
	assert.NoError(t, readConfig(config.NewViper(), ""))
}

func TestReadConfig_NamedFile(t *testing.T) {
	v := config.NewViper()
	path := writeConfig(t, "subscribe:\n  limit: 4\ndatabase:\n  path: ./cb.db\n")

	require.NoError(t, readConfig(v, path))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.SubscribeLimit)
	assert.Equal(t, "./cb.db", cfg.DatabasePath)
}

func TestReadConfig_MissingNamedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	err := readConfig(config.NewViper(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestReadConfig_MalformedFile(t *testing.T) {
	path := writeConfig(t, "subscribe: [limit: 4\n")

	err := readConfig(config.NewViper(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}
