package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pocketledger/fieldcrypt/internal/cipher"
	"github.com/pocketledger/fieldcrypt/providers/awskms"
	"github.com/pocketledger/fieldcrypt/providers/secrets/hashicorp"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase derived keys.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	minSaltLen   = 16
)

// keyStorer is satisfied by *hashicorp.KeyStore.
type keyStorer interface {
	StoreKey(ctx context.Context, hexKey string) (int, error)
	Path() string
}

// keyWrapper is satisfied by *awskms.KeyProvider.
type keyWrapper interface {
	GenerateKey(ctx context.Context) (string, error)
	WrapKey(ctx context.Context, hexKey string) (string, error)
}

// newKeyWrapper is replaced in tests.
var newKeyWrapper = func(ctx context.Context, keyID string) (keyWrapper, error) {
	return awskms.New(ctx, awskms.Config{KeyID: keyID})
}

// newKeyStore is replaced in tests.
var newKeyStore = func(mount, name string) (keyStorer, error) {
	return hashicorp.NewKeyStore(hashicorp.WithMount(mount), hashicorp.WithKeyName(name))
}

func (a *app) keygen(args []string) error {
	fs := a.newFlagSet("keygen")
	passphrase := fs.String("passphrase", "", "derive the key from a passphrase with Argon2id instead of generating it")
	salt := fs.String("salt", "", "salt for --passphrase, at least 16 characters")
	toVault := fs.Bool("vault", false, "store the key in Vault KV v2 instead of printing it")
	mount := fs.String("vault-mount", hashicorp.DefaultMount, "KV v2 mount")
	name := fs.String("vault-name", hashicorp.DefaultKeyName, "secret name under the mount")
	kmsKeyID := fs.String("kms-key-id", "", "print the key wrapped by this KMS key, for "+awskms.EnvWrappedKey)
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}
	if *toVault && *kmsKeyID != "" {
		return errors.New("--vault and --kms-key-id are mutually exclusive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *kmsKeyID != "" {
		return a.kmsKeygen(ctx, *kmsKeyID, *passphrase, *salt)
	}

	key, err := generateKey(*passphrase, *salt)
	if err != nil {
		return err
	}
	hexKey := hex.EncodeToString(key)

	if !*toVault {
		fmt.Fprintln(a.stdout, hexKey)
		return nil
	}

	store, err := newKeyStore(*mount, *name)
	if err != nil {
		return err
	}
	v, err := store.StoreKey(ctx, hexKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "stored key version %d at %s\n", v, store.Path())
	return nil
}

// kmsKeygen prints a wrapped key. Without a passphrase KMS generates the
// key itself and the plaintext is never seen here.
func (a *app) kmsKeygen(ctx context.Context, keyID, passphrase, salt string) error {
	w, err := newKeyWrapper(ctx, keyID)
	if err != nil {
		return err
	}
	var wrapped string
	if passphrase == "" && salt == "" {
		wrapped, err = w.GenerateKey(ctx)
	} else {
		var key []byte
		if key, err = generateKey(passphrase, salt); err != nil {
			return err
		}
		wrapped, err = w.WrapKey(ctx, hex.EncodeToString(key))
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, wrapped)
	return nil
}

// generateKey returns a random key, or an Argon2id derivation of
// passphrase when one is given.
func generateKey(passphrase, salt string) ([]byte, error) {
	if passphrase == "" {
		if salt != "" {
			return nil, errors.New("--salt requires --passphrase")
		}
		key := make([]byte, cipher.KeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		return key, nil
	}
	if len(salt) < minSaltLen {
		return nil, fmt.Errorf("--salt must be at least %d characters", minSaltLen)
	}
	return argon2.IDKey([]byte(passphrase), []byte(salt), argonTime, argonMemory, argonThreads, cipher.KeyLength), nil
}
