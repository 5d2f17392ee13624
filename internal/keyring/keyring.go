// Package keyring stores the GitHub personal access token in the OS
// keyring rather than in the collection store.
package keyring

import (
	"github.com/zalando/go-keyring"
)

const (
	serviceName = "web-collections"
	tokenUser   = "github-token"
)

// SaveToken stores the GitHub token in the OS keyring.
func SaveToken(token string) error {
	return keyring.Set(serviceName, tokenUser, token)
}

// GetToken retrieves the GitHub token from the OS keyring.
func GetToken() (string, error) {
	return keyring.Get(serviceName, tokenUser)
}

// DeleteToken removes the GitHub token from the OS keyring.
func DeleteToken() error {
	return keyring.Delete(serviceName, tokenUser)
}

// HasToken checks whether a GitHub token is stored.
func HasToken() bool {
	_, err := keyring.Get(serviceName, tokenUser)
	return err == nil
}
