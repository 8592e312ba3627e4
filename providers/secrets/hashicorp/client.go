package hashicorp

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
)

var (
	ErrInvalidConfiguration = errors.New("invalid vault configuration")
	ErrUnavailable          = errors.New("vault unavailable")
	ErrAuthenticationFailed = errors.New("vault authentication failed")
)

// Environment variables read by NewVaultClient.
const (
	EnvVaultAddr      = "VAULT_ADDR"
	EnvVaultNamespace = "VAULT_NAMESPACE"
	EnvVaultToken     = "VAULT_TOKEN"
	EnvVaultRoleID    = "VAULT_ROLE_ID"
	EnvVaultSecretID  = "VAULT_SECRET_ID"
)

// NewVaultClient creates a Vault client configured from the environment.
//
// Environment Variables:
//   - VAULT_ADDR: Vault server address (required)
//   - VAULT_NAMESPACE: namespace for HCP or Enterprise Vault (optional)
//   - VAULT_TOKEN: token used directly (optional)
//   - VAULT_ROLE_ID, VAULT_SECRET_ID: AppRole credentials (optional)
//
// A token takes precedence over AppRole. With neither set an error is
// returned.
func NewVaultClient() (*api.Client, error) {
	config := api.DefaultConfig()
	if addr := os.Getenv(EnvVaultAddr); addr != "" {
		config.Address = addr
	}
	if config.Address == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfiguration, EnvVaultAddr)
	}
	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %w", ErrUnavailable, err)
	}
	if ns := os.Getenv(EnvVaultNamespace); ns != "" {
		client.SetNamespace(ns)
	}

	if token := os.Getenv(EnvVaultToken); token != "" {
		client.SetToken(token)
		return client, nil
	}

	roleID := os.Getenv(EnvVaultRoleID)
	secretID := os.Getenv(EnvVaultSecretID)
	if roleID == "" || secretID == "" {
		return nil, fmt.Errorf("%w: set %s or %s and %s",
			ErrInvalidConfiguration, EnvVaultToken, EnvVaultRoleID, EnvVaultSecretID)
	}

	resp, err := client.Logical().Write("auth/approle/login", map[string]any{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: approle login: %w", ErrAuthenticationFailed, err)
	}
	if resp == nil || resp.Auth == nil {
		return nil, fmt.Errorf("%w: approle login returned no auth info", ErrAuthenticationFailed)
	}
	client.SetToken(resp.Auth.ClientToken)
	return client, nil
}
