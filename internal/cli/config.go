package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mcoot/rankdir/internal/client"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	BasePath  string
	StateFile string
	Output    string
	Timeout   time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("RANKDIR_SERVER", "http://localhost:8080"),
		BasePath:  getEnvOrDefault("RANKDIR_BASE_PATH", "/api/v1"),
		StateFile: getEnvOrDefault("RANKDIR_STATE_FILE", defaultStateFile()),
		Output:    "text",
		Timeout:   client.DefaultTimeout,
	}
}

// APIURL is the server URL with the API base path
func (c *Config) APIURL() string {
	return c.ServerURL + c.BasePath
}

// LoadState reads the saved flow; a missing file means anonymous
func (c *Config) LoadState() (client.Snapshot, error) {
	var snap client.Snapshot

	data, err := os.ReadFile(c.StateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, err
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return client.Snapshot{}, err
	}
	return snap, nil
}

// SaveState writes the flow to the state file
func (c *Config) SaveState(snap client.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.StateFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(c.StateFile, data, 0600)
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rankdir/state.json"
	}
	return filepath.Join(home, ".rankdir", "state.json")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
