package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultSecretsPath = "/var/run/secrets/svklom"
	usernameFile       = "username"
	passwordFile       = "password"
)

// tryLoadFromSecrets attempts to read credentials from mounted secret files.
// Returns empty strings if the secrets path doesn't exist (not an error -
// allows fallback to env vars).
func tryLoadFromSecrets() (username, password string, err error) {
	secretsPath := os.Getenv("SVK_SECRETS_PATH")
	if secretsPath == "" {
		secretsPath = defaultSecretsPath
	}

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return "", "", nil
	}

	usernameData, err := os.ReadFile(filepath.Join(secretsPath, usernameFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", err
	}
	username = strings.TrimSpace(string(usernameData))

	passwordData, err := os.ReadFile(filepath.Join(secretsPath, passwordFile))
	if err != nil {
		if os.IsNotExist(err) {
			return username, "", nil
		}
		return "", "", err
	}
	password = strings.TrimSpace(string(passwordData))

	return username, password, nil
}
