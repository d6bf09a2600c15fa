package utils

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecret reads a secret from the standard Docker Secrets path,
// falling back to the MINTOONS_<NAME> environment variable so local
// development does not require mounted secret files.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err == nil {
		secret := strings.TrimSpace(string(secretBytes))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", filePath)
		}
		return secret, nil
	}

	envName := "MINTOONS_" + strings.ToUpper(secretName)
	if val := strings.TrimSpace(os.Getenv(envName)); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("failed to read secret %s (file %s, env %s): %w", secretName, filePath, envName, err)
}
