// Package hashicorp stores the field encryption key in a HashiCorp Vault
// KV v2 secrets engine.
//
// KeyStore implements fieldcrypt.KeyProvider. Every StoreKey call creates a
// new secret version, so rotating the key keeps the previous one readable
// through KeyVersion while old records are re-encrypted.
//
// # Basic Usage
//
//	store, err := hashicorp.NewKeyStore(hashicorp.WithMount("kv"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	crypto, err := fieldcrypt.New(cfg, fieldcrypt.WithKeyProvider(store, 5*time.Second))
//
// The client reads VAULT_ADDR, VAULT_NAMESPACE and either VAULT_TOKEN or
// VAULT_ROLE_ID with VAULT_SECRET_ID.
package hashicorp
