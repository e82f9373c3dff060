package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	raw := `{
		"mongo": {
			"uri": "mongodb://localhost:27017",
			"database": "parley",
			"messagesCollection": "messages",
			"callsCollection": "calls",
			"usersCollection": "users",
			"socketRoute": "ws"
		},
		"server": {
			"app_port": 8080,
			"socket_port": 8081,
			"allowed_origins": ["http://localhost:4200"]
		},
		"push": {
			"endpoint": "https://push.example.com/send",
			"api_key": "secret"
		}
	}`

	path := filepath.Join(t.TempDir(), "config.json")
	assert.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", cfg.ChatDatabase.Uri)
	assert.Equal(t, "parley", cfg.ChatDatabase.Database)
	assert.Equal(t, "calls", cfg.ChatDatabase.CallsCollection)
	assert.Equal(t, 8080, cfg.Server.AppPort)
	assert.Equal(t, 8081, cfg.Server.SocketPort)
	assert.Equal(t, []string{"http://localhost:4200"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://push.example.com/send", cfg.Push.Endpoint)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	assert.NoError(t, os.WriteFile(path, []byte(`{"server":`), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
