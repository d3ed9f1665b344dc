package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "contenteditable", cfg.DocumentID)
	assert.Equal(t, "webstrates", cfg.Collection)
	assert.Equal(t, "ws://localhost:7007/ws/", cfg.URL())
	assert.Equal(t, filepath.Join("documents", "contenteditable.html"), cfg.MountPoint())
	assert.Equal(t, int64(20*1024*1024), cfg.Remote.MaxFrameSize)
	assert.Contains(t, cfg.Markup.VoidTags, "br")
	assert.Len(t, cfg.Markup.VoidTags, 16)
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"ws://localhost:7007", "ws://localhost:7007"},
		{"wss://example.com", "wss://example.com"},
		{"example.com:443", "wss://example.com:443"},
		{"localhost", "wss://localhost"},
		{"http://example.com", "wss://http://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHost(tt.host))
		})
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DocumentID, cfg.DocumentID)
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"mirror.toml": `
document_id = "notes"
host = "example.com"

[remote]
reconnect_delay_ms = 250
max_reconnects = 3
`,
		"mirror.yaml": `
document_id: notes
host: example.com
remote:
  reconnect_delay_ms: 250
  max_reconnects: 3
`,
		"mirror.json": `{"document_id": "notes", "host": "example.com",
			"remote": {"reconnect_delay_ms": 250, "max_reconnects": 3}}`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			cfg, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, "notes", cfg.DocumentID)
			assert.Equal(t, "wss://example.com/ws/", cfg.URL())
			assert.Equal(t, 3, cfg.Remote.MaxReconnects)
			assert.Equal(t, "250ms", cfg.ReconnectDelay().String())
			// untouched values keep their defaults
			assert.Equal(t, "webstrates", cfg.Collection)
			assert.Equal(t, "&dot;", cfg.Markup.KeyPlaceholder)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTMLMIRROR_ID", "from-env")
	t.Setenv("HTMLMIRROR_HOST", "wss://env.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DocumentID)
	assert.Equal(t, "wss://env.example/ws/", cfg.URL())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DocumentID = "../escape"
	cfg.Remote.ReconnectDelayMs = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}

func TestEnsureMountDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MountDir = filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, cfg.EnsureMountDir())
	info, err := os.Stat(cfg.MountDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
