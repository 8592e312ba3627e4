package fieldcrypt

import "time"

// Environment variable names
const (
	// EnvEncryptionKey holds the 32-byte AES key as 64 hex characters.
	EnvEncryptionKey = "ENCRYPTION_KEY"

	// EnvUseEncryption disables encryption when set to "false". Used to roll
	// back a migration; values then pass through unchanged.
	EnvUseEncryption = "USE_ENCRYPTION"

	// EnvAppEnv selects the logger: "production" logs JSON, anything else
	// logs to a colorized console.
	EnvAppEnv = "APP_ENV"

	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvAuditLogging       = "AUDIT_LOGGING"
	EnvAuditLogDecryption = "AUDIT_LOG_DECRYPTION"
	EnvAuditLogReads      = "AUDIT_LOG_READS"
	EnvAuditMinSeverity   = "AUDIT_MIN_SEVERITY"

	EnvCacheMaxSize = "DECRYPTION_CACHE_MAX_SIZE"
	EnvCacheTTL     = "DECRYPTION_CACHE_TTL"

	// EnvSchemaFile points at a YAML schema replacing the built-in models.
	EnvSchemaFile = "FIELDCRYPT_SCHEMA_FILE"

	// EnvStrict turns double encryption into an error instead of a warning.
	EnvStrict = "FIELDCRYPT_STRICT"
)

// Default values
const (
	DefaultAppEnv           = "development"
	DefaultCacheMaxSize     = 1000
	DefaultCacheTTL         = 60 * time.Second
	DefaultAuditMinSeverity = "INFO"

	// MaxUnwrapDepth bounds how many nested encryption layers decryption
	// removes before giving up.
	MaxUnwrapDepth = 5
)

const (
	opEncrypt       = "encrypt"
	opDecryptString = "decrypt_string"
	opDecryptNumber = "decrypt_number"
)
