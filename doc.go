// Package fieldcrypt encrypts the sensitive fields of personal-finance
// records before they are stored and decrypts them after they are read.
//
// Each sensitive value is stored as a ciphertext token of three hex
// segments, iv:tag:ciphertext, produced by AES-256-GCM. Which fields of which
// model are sensitive is declared in a schema registry; everything else in a
// record passes through untouched.
//
// # Basic usage
//
//	crypto, err := fieldcrypt.New(fieldcrypt.Config{
//	    Key:     os.Getenv("ENCRYPTION_KEY"),
//	    Enabled: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stored, err := crypto.EncryptRecord(ctx, fieldcrypt.Record{
//	    "id":          "tx-1",
//	    "value":       1234.5,
//	    "description": "Groceries",
//	}, "Transaction")
//
//	rec, err := crypto.DecryptRecord(ctx, stored, "Transaction")
//
// DecryptRecord tolerates damaged fields: a field that cannot be decrypted
// becomes 0 or "" and the rest of the record is still returned. Use
// DecryptRecordDetailed to learn which fields fell back, or the single value
// functions (DecryptNumber, DecryptString) to fail hard.
//
// # Nested records
//
// Records holding child records are decrypted with a NestedConfig tree:
//
//	card, err := crypto.DecryptWithConfig(ctx, rec, fieldcrypt.CardWithInvoicesAndPurchases)
//
// # Caching
//
// A DecryptionCache avoids decrypting the same record twice within a
// request. Create one per request:
//
//	cache := crypto.NewCache()
//	rec, err := crypto.DecryptRecordCached(ctx, cache, raw, "Account")
//
// # Disabling encryption
//
// With Config.Enabled false (USE_ENCRYPTION=false) every operation passes
// values through unchanged and the key is never read.
package fieldcrypt
