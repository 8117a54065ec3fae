package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	apiBaseURLVar      = "CARPENTER_API_URL"
	credentialsFileVar = "CARPENTER_CREDENTIALS_FILE"
	httpTimeoutVar     = "CARPENTER_HTTP_TIMEOUT"
)

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "https://happy-carpenter-ebf6de9467cb.herokuapp.com")
}

func (Client) GetCredentialsFile() string {
	if path := os.Getenv(credentialsFileVar); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "carpenter-credentials.bin"
	}
	return filepath.Join(home, ".carpenter", "credentials.bin")
}

func (Client) GetHTTPTimeout() time.Duration {
	raw := GetEnv(httpTimeoutVar, "30s")
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 30 * time.Second
	}
	return timeout
}
