package testutil

import (
	"embed"

	"github.com/BurntSushi/toml"

	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/session"
)

//go:embed fixtures/*.toml fixtures/*.json
var fixtures embed.FS

// LoadFixture loads a fixture file by name
func LoadFixture(name string) ([]byte, error) {
	return fixtures.ReadFile("fixtures/" + name)
}

func decodeConfig(name string) (*config.Config, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidConfig returns a parsed configuration that passes validation
func ValidConfig() (*config.Config, error) {
	return decodeConfig("valid_config.toml")
}

// InvalidConfig returns a parsed configuration that fails validation
func InvalidConfig() (*config.Config, error) {
	return decodeConfig("invalid_config.toml")
}

// NotificationPayload returns the raw well-formed tunnel notification
func NotificationPayload() []byte {
	data, err := LoadFixture("notification.json")
	if err != nil {
		panic(err)
	}
	return data
}

// ValidNotification returns the parsed well-formed tunnel notification
func ValidNotification() (*session.Notification, error) {
	return session.ParseNotification(NotificationPayload())
}
