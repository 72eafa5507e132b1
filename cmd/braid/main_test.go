package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/braid"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	assert.NoError(t, err)
	assert.Equal(t, "braid version "+braid.Version+"\n", out)
}

func TestRunDefaultPairs(t *testing.T) {
	out, err := execute(t, "run", "--backend", "memory", "--timeout", "10s")
	assert.NoError(t, err)
	assert.Equal(t, "[42,72,110]", strings.TrimSpace(out))
}

func TestRunCustomPairs(t *testing.T) {
	out, err := execute(t, "run", "[[2,3],[4,5]]")
	assert.NoError(t, err)
	assert.Equal(t, "[6,20]", strings.TrimSpace(out))
}

func TestRunInvalidPairs(t *testing.T) {
	_, err := execute(t, "run", "not json")
	assert.ErrorContains(t, err, "invalid pairs")
}

func TestRunFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "braid.yaml")
	cfg := "log_level: error\nhistory:\n  backend: memory\n"
	assert.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	out, err := execute(t, "--config", path, "run", "--backend", "")
	assert.NoError(t, err)
	assert.Equal(t, "[42,72,110]", strings.TrimSpace(out))
}

func TestBadConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.yaml")
		_, err := execute(t, "--config", path, "run")
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := execute(t, "run", "--backend", "floppy")
		assert.Error(t, err)
	})
}
