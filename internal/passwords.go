package internal

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// StorePasswordEnv names the environment variable consulted for the store
// password when no password file is configured.
const StorePasswordEnv = "CERTTRUST_STORE_PASSWORD"

// LoadPasswordsFromFile loads passwords from a file, one password per line.
// Blank lines are skipped.
func LoadPasswordsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var passwords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			passwords = append(passwords, pwd)
		}
	}
	return passwords, scanner.Err()
}

// ResolveStorePassword picks the trust store password: the first line of
// passwordFile if set, else $CERTTRUST_STORE_PASSWORD, else fallback.
func ResolveStorePassword(passwordFile, fallback string) (string, error) {
	if passwordFile != "" {
		passwords, err := LoadPasswordsFromFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("loading store password from file: %w", err)
		}
		if len(passwords) == 0 {
			return "", fmt.Errorf("password file %s is empty", passwordFile)
		}
		return passwords[0], nil
	}
	if pwd := os.Getenv(StorePasswordEnv); pwd != "" {
		return pwd, nil
	}
	return fallback, nil
}
