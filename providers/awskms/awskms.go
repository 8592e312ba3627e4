// Package awskms provides the field encryption key through AWS KMS envelope
// encryption. The 32-byte key is stored wrapped by a KMS key, usually in the
// ENCRYPTION_KEY_WRAPPED variable, and unwrapped with kms:Decrypt on first
// use. The plaintext key never leaves the process.
package awskms

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pocketledger/fieldcrypt"
	"github.com/pocketledger/fieldcrypt/internal/cipher"
)

const (
	EnvKMSKeyID   = "KMS_KEY_ID"
	EnvWrappedKey = "ENCRYPTION_KEY_WRAPPED"
)

var (
	// ErrInvalidConfiguration is returned for missing key ids or aliases.
	ErrInvalidConfiguration = errors.New("invalid KMS configuration")
	// ErrUnavailable wraps failed KMS calls.
	ErrUnavailable = errors.New("KMS unavailable")
)

type kmsClient interface {
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Config holds configuration for the KMS key provider.
type Config struct {
	// Region is the AWS region. If empty, AWS_REGION or the shared config
	// file is used.
	Region string

	// AWSConfig is an optional pre-configured AWS config. If provided,
	// Region is ignored.
	AWSConfig *aws.Config

	// KeyID is the KMS key, alias or ARN used to wrap new keys. Decryption
	// does not need it.
	KeyID string

	// WrappedKey is the base64 ciphertext blob of the field key.
	WrappedKey string
}

// ConfigFromEnv reads KMS_KEY_ID and ENCRYPTION_KEY_WRAPPED.
func ConfigFromEnv() Config {
	return Config{
		KeyID:      os.Getenv(EnvKMSKeyID),
		WrappedKey: os.Getenv(EnvWrappedKey),
	}
}

// KeyProvider implements fieldcrypt.KeyProvider on top of AWS KMS.
type KeyProvider struct {
	client     kmsClient
	region     string
	keyID      string
	wrappedKey string
}

// New creates a KeyProvider using the default AWS credential chain.
//
//	kp, err := awskms.New(ctx, awskms.ConfigFromEnv())
//	crypto, err := fieldcrypt.New(cfg, fieldcrypt.WithKeyProvider(kp, 5*time.Second))
func New(ctx context.Context, cfg Config) (*KeyProvider, error) {
	var awsConfig aws.Config
	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		var opts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		var err error
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", ErrUnavailable, err)
		}
	}
	p := newKeyProvider(kms.NewFromConfig(awsConfig), cfg)
	p.region = awsConfig.Region
	return p, nil
}

func newKeyProvider(client kmsClient, cfg Config) *KeyProvider {
	return &KeyProvider{
		client:     client,
		keyID:      cfg.KeyID,
		wrappedKey: strings.TrimSpace(cfg.WrappedKey),
	}
}

// Region returns the AWS region the provider is configured for.
func (p *KeyProvider) Region() string {
	return p.region
}

// EncryptionKey unwraps the configured key and returns it as hex.
//
// An empty wrapped key is a MissingKey error. A blob that is not base64 or
// that unwraps to something other than a 32-byte key is an InvalidKey
// error.
func (p *KeyProvider) EncryptionKey(ctx context.Context) (string, error) {
	if p.wrappedKey == "" {
		return "", fieldcrypt.NewMissingKeyError()
	}
	blob, err := base64.StdEncoding.DecodeString(p.wrappedKey)
	if err != nil {
		return "", fieldcrypt.NewInvalidKeyError(fmt.Errorf("wrapped key is not base64: %w", err))
	}

	input := &kms.DecryptInput{CiphertextBlob: blob}
	if p.keyID != "" {
		input.KeyId = aws.String(p.keyID)
	}
	out, err := p.client.Decrypt(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: failed to unwrap key: %w", ErrUnavailable, err)
	}
	if len(out.Plaintext) != cipher.KeyLength {
		return "", fieldcrypt.NewInvalidKeyError(fmt.Errorf("unwrapped key is %d bytes, want %d", len(out.Plaintext), cipher.KeyLength))
	}
	return hex.EncodeToString(out.Plaintext), nil
}

// GenerateKey asks KMS for a new AES-256 data key. It returns the wrapped
// blob to store, base64 encoded. The plaintext half is discarded.
func (p *KeyProvider) GenerateKey(ctx context.Context) (string, error) {
	if p.keyID == "" {
		return "", fmt.Errorf("%w: key id is required", ErrInvalidConfiguration)
	}
	out, err := p.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(p.keyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate data key with %s: %w", ErrUnavailable, p.keyID, err)
	}
	if len(out.CiphertextBlob) == 0 {
		return "", fmt.Errorf("%w: no ciphertext returned", ErrUnavailable)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// WrapKey encrypts an existing hex key under the configured KMS key, for
// moving a key out of ENCRYPTION_KEY.
func (p *KeyProvider) WrapKey(ctx context.Context, hexKey string) (string, error) {
	if p.keyID == "" {
		return "", fmt.Errorf("%w: key id is required", ErrInvalidConfiguration)
	}
	key, err := cipher.ParseHexKey(hexKey)
	if err != nil {
		return "", fieldcrypt.NewInvalidKeyError(err)
	}
	out, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: key,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to wrap key with %s: %w", ErrUnavailable, p.keyID, err)
	}
	if len(out.CiphertextBlob) == 0 {
		return "", fmt.Errorf("%w: no ciphertext returned", ErrUnavailable)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// ResolveAlias returns the key id an alias points to. The "alias/" prefix
// is added when missing.
func (p *KeyProvider) ResolveAlias(ctx context.Context, alias string) (string, error) {
	if alias == "" {
		return "", fmt.Errorf("%w: alias cannot be empty", ErrInvalidConfiguration)
	}
	if !strings.HasPrefix(alias, "alias/") {
		alias = "alias/" + alias
	}

	out, err := p.client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(alias)})
	if err != nil {
		return "", fmt.Errorf("%w: failed to describe KMS key %s: %w", ErrUnavailable, alias, err)
	}
	if out.KeyMetadata == nil || out.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned for alias %s", ErrUnavailable, alias)
	}
	return *out.KeyMetadata.KeyId, nil
}
