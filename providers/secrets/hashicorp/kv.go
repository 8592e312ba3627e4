package hashicorp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/pocketledger/fieldcrypt"
	"github.com/pocketledger/fieldcrypt/internal/cipher"
)

const (
	DefaultMount   = "secret"
	DefaultKeyName = "fieldcrypt/encryption-key"

	// keyField is the entry inside the KV v2 secret holding the hex key.
	keyField = "key"
)

// logical is the part of *api.Logical the key store uses.
type logical interface {
	ReadWithDataWithContext(ctx context.Context, path string, data map[string][]string) (*api.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]any) (*api.Secret, error)
}

// KeyStore keeps the field encryption key in a Vault KV v2 engine. It
// implements fieldcrypt.KeyProvider, so a Crypto can load its key from Vault
// instead of ENCRYPTION_KEY:
//
//	store, err := hashicorp.NewKeyStore()
//	crypto, err := fieldcrypt.New(cfg, fieldcrypt.WithKeyProvider(store, 5*time.Second))
type KeyStore struct {
	logical logical
	mount   string
	name    string
	version int
}

type Option func(*KeyStore)

// WithMount sets the KV v2 mount path. Defaults to "secret".
func WithMount(mount string) Option {
	return func(k *KeyStore) { k.mount = strings.Trim(mount, "/") }
}

// WithKeyName sets the secret name under the mount.
func WithKeyName(name string) Option {
	return func(k *KeyStore) { k.name = strings.Trim(name, "/") }
}

// WithVersion pins EncryptionKey to one version of the secret instead of
// the latest.
func WithVersion(version int) Option {
	return func(k *KeyStore) { k.version = version }
}

// NewKeyStore creates a KeyStore with a client configured from the
// environment (see NewVaultClient).
//
// The KV v2 engine must be enabled first:
//
//	vault secrets enable -path=secret kv-v2
func NewKeyStore(opts ...Option) (*KeyStore, error) {
	client, err := NewVaultClient()
	if err != nil {
		return nil, err
	}
	return NewKeyStoreWithClient(client, opts...), nil
}

// NewKeyStoreWithClient creates a KeyStore on an existing client.
func NewKeyStoreWithClient(client *api.Client, opts ...Option) *KeyStore {
	return newKeyStore(client.Logical(), opts...)
}

func newKeyStore(l logical, opts ...Option) *KeyStore {
	k := &KeyStore{
		logical: l,
		mount:   DefaultMount,
		name:    DefaultKeyName,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Path returns the KV v2 data path of the key, e.g.
// "secret/data/fieldcrypt/encryption-key".
func (k *KeyStore) Path() string {
	return k.mount + "/data/" + k.name
}

// EncryptionKey returns the pinned version of the key, or the latest one.
func (k *KeyStore) EncryptionKey(ctx context.Context) (string, error) {
	return k.KeyVersion(ctx, k.version)
}

// KeyVersion reads one version of the key. Version 0 means the latest.
//
// A missing secret is a MissingKey error, a missing version a
// KeyVersionNotFound error and a stored value that is not a valid key an
// InvalidKey error.
func (k *KeyStore) KeyVersion(ctx context.Context, version int) (string, error) {
	var query map[string][]string
	if version > 0 {
		query = map[string][]string{"version": {strconv.Itoa(version)}}
	}

	secret, err := k.logical.ReadWithDataWithContext(ctx, k.Path(), query)
	if err != nil && !errors.Is(err, api.ErrSecretNotFound) {
		return "", fmt.Errorf("%w: read %s: %w", ErrUnavailable, k.Path(), err)
	}

	data := secretData(secret)
	if data == nil {
		if version > 0 {
			return "", fieldcrypt.NewKeyVersionNotFoundError(version)
		}
		return "", fieldcrypt.NewMissingKeyError()
	}

	hexKey, ok := data[keyField].(string)
	if !ok || hexKey == "" {
		return "", fieldcrypt.NewInvalidKeyError(fmt.Errorf("secret %s has no %q entry", k.Path(), keyField))
	}
	if _, err := cipher.ParseHexKey(hexKey); err != nil {
		return "", fieldcrypt.NewInvalidKeyError(err)
	}
	return hexKey, nil
}

// StoreKey writes hexKey as a new version of the secret and returns the
// version Vault assigned. Earlier versions stay readable with KeyVersion.
func (k *KeyStore) StoreKey(ctx context.Context, hexKey string) (int, error) {
	if _, err := cipher.ParseHexKey(hexKey); err != nil {
		return 0, fieldcrypt.NewInvalidKeyError(err)
	}

	resp, err := k.logical.WriteWithContext(ctx, k.Path(), map[string]any{
		"data": map[string]any{keyField: hexKey},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: write %s: %w", ErrUnavailable, k.Path(), err)
	}
	if resp == nil || resp.Data == nil {
		return 0, nil
	}
	return toInt(resp.Data["version"]), nil
}

// KeyExists reports whether the latest version holds a key. Read failures
// are returned; a missing secret is not an error.
func (k *KeyStore) KeyExists(ctx context.Context) (bool, error) {
	secret, err := k.logical.ReadWithDataWithContext(ctx, k.Path(), nil)
	if err != nil && !errors.Is(err, api.ErrSecretNotFound) {
		return false, fmt.Errorf("%w: read %s: %w", ErrUnavailable, k.Path(), err)
	}
	data := secretData(secret)
	if data == nil {
		return false, nil
	}
	_, ok := data[keyField].(string)
	return ok, nil
}

// secretData unwraps the KV v2 "data" envelope. Deleted and destroyed
// versions come back with a nil envelope.
func secretData(secret *api.Secret) map[string]any {
	if secret == nil || secret.Data == nil {
		return nil
	}
	data, _ := secret.Data["data"].(map[string]any)
	return data
}

func toInt(v any) int {
	switch n := v.(type) {
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
