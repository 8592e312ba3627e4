package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pocketledger/fieldcrypt"
	"github.com/pocketledger/fieldcrypt/audit"
	"github.com/pocketledger/fieldcrypt/providers/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	stdout, stderr string
	err            error
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{stdin: strings.NewReader(stdin), stdout: &out, stderr: &errOut}
	err := a.run(args)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// setupEnv runs the test in an empty directory with the test key set.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(fieldcrypt.EnvEncryptionKey, fieldcrypt.TestKey)
	t.Setenv(fieldcrypt.EnvUseEncryption, "true")
	t.Setenv(fieldcrypt.EnvSchemaFile, "")
	return dir
}

func TestRun_Usage(t *testing.T) {
	r := runCLI(t, "")
	assert.ErrorIs(t, r.err, errUsage)
	assert.Contains(t, r.stderr, "Usage: fieldcrypt")

	r = runCLI(t, "", "frobnicate")
	assert.ErrorIs(t, r.err, errUsage)
	assert.Contains(t, r.stderr, "Unknown command: frobnicate")

	r = runCLI(t, "", "--help")
	assert.NoError(t, r.err)
	for _, c := range commands {
		assert.Contains(t, r.stderr, c.name)
	}

	r = runCLI(t, "", "version")
	require.NoError(t, r.err)
	assert.Equal(t, "fieldcrypt version dev\n", r.stdout)
}

func TestRun_CommandHelp(t *testing.T) {
	r := runCLI(t, "", "encrypt", "--help")
	assert.NoError(t, r.err)
	assert.Contains(t, r.stderr, "--number")
	assert.Empty(t, r.stdout)

	r = runCLI(t, "", "encrypt", "--bogus")
	assert.Error(t, r.err)
}

func TestKeygen(t *testing.T) {
	r := runCLI(t, "", "keygen")
	require.NoError(t, r.err)
	key := strings.TrimSpace(r.stdout)
	assert.Len(t, key, 64)
	_, err := hex.DecodeString(key)
	assert.NoError(t, err)

	other := runCLI(t, "", "keygen")
	assert.NotEqual(t, r.stdout, other.stdout)
}

func TestKeygen_Passphrase(t *testing.T) {
	args := []string{"keygen", "--passphrase", "correct horse", "--salt", "pocketledger-salt"}
	first := runCLI(t, "", args...)
	require.NoError(t, first.err)
	second := runCLI(t, "", args...)
	require.NoError(t, second.err)
	assert.Equal(t, first.stdout, second.stdout, "derivation is deterministic")
	assert.Len(t, strings.TrimSpace(first.stdout), 64)

	r := runCLI(t, "", "keygen", "--passphrase", "x", "--salt", "short")
	assert.ErrorContains(t, r.err, "at least 16")

	r = runCLI(t, "", "keygen", "--salt", "pocketledger-salt")
	assert.ErrorContains(t, r.err, "--salt requires --passphrase")
}

type fakeKeyStore struct {
	stored []string
	err    error
}

func (f *fakeKeyStore) StoreKey(_ context.Context, hexKey string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.stored = append(f.stored, hexKey)
	return len(f.stored), nil
}

func (f *fakeKeyStore) Path() string { return "secret/data/fieldcrypt/encryption-key" }

func TestKeygen_Vault(t *testing.T) {
	store := &fakeKeyStore{}
	var gotMount, gotName string
	orig := newKeyStore
	newKeyStore = func(mount, name string) (keyStorer, error) {
		gotMount, gotName = mount, name
		return store, nil
	}
	t.Cleanup(func() { newKeyStore = orig })

	r := runCLI(t, "", "keygen", "--vault", "--vault-name", "app/key")
	require.NoError(t, r.err)
	assert.Equal(t, "secret", gotMount)
	assert.Equal(t, "app/key", gotName)
	require.Len(t, store.stored, 1)
	assert.NotContains(t, r.stdout, store.stored[0], "the key is not printed")
	assert.Contains(t, r.stdout, "stored key version 1")

	store.err = errors.New("permission denied")
	r = runCLI(t, "", "keygen", "--vault")
	assert.ErrorContains(t, r.err, "permission denied")
}

func TestEncryptDecrypt(t *testing.T) {
	setupEnv(t)

	r := runCLI(t, "", "encrypt", "Groceries", "Rent")
	require.NoError(t, r.err)
	tokens := strings.Fields(r.stdout)
	require.Len(t, tokens, 2)
	for _, tok := range tokens {
		assert.True(t, fieldcrypt.IsEncrypted(tok))
	}

	r = runCLI(t, "", append([]string{"decrypt"}, tokens...)...)
	require.NoError(t, r.err)
	assert.Equal(t, "Groceries\nRent\n", r.stdout)
}

func TestEncryptDecrypt_Number(t *testing.T) {
	setupEnv(t)

	r := runCLI(t, "", "encrypt", "--number", "1234.5")
	require.NoError(t, r.err)
	token := strings.TrimSpace(r.stdout)

	r = runCLI(t, "", "decrypt", "--number", token)
	require.NoError(t, r.err)
	assert.Equal(t, "1234.5\n", r.stdout)

	r = runCLI(t, "", "encrypt", "--number", "abc")
	assert.ErrorContains(t, r.err, "not a number")
}

func TestDecrypt_MissingKey(t *testing.T) {
	setupEnv(t)
	t.Setenv(fieldcrypt.EnvEncryptionKey, "")

	r := runCLI(t, "", "encrypt", "x")
	assert.ErrorIs(t, r.err, fieldcrypt.ErrMissingKey)
}

func TestInspect(t *testing.T) {
	setupEnv(t)
	token := strings.TrimSpace(runCLI(t, "", "encrypt", "hello").stdout)
	t.Setenv(fieldcrypt.EnvEncryptionKey, "")

	r := runCLI(t, "", "inspect", token, "plain")
	require.NoError(t, r.err)

	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	require.Len(t, lines, 2)

	var info tokenInfo
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	assert.True(t, info.Encrypted)
	assert.Equal(t, 16, info.IVBytes)
	assert.Equal(t, 16, info.TagBytes)
	assert.Equal(t, 5, info.PlaintextSize)
	assert.True(t, strings.HasSuffix(info.Value, "..."))

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &info))
	assert.Equal(t, tokenInfo{Value: "plain"}, info)
}

func TestRecords_RoundTrip(t *testing.T) {
	setupEnv(t)

	in := `{"id":"tx-1","value":-82.4,"description":"Electricity","category":"bills"}`
	r := runCLI(t, in, "encrypt-record", "--model", "Transaction")
	require.NoError(t, r.err)

	var enc map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &enc))
	assert.True(t, fieldcrypt.IsEncrypted(enc["value"].(string)))
	assert.True(t, fieldcrypt.IsEncrypted(enc["description"].(string)))
	assert.Equal(t, "bills", enc["category"])

	r = runCLI(t, r.stdout, "decrypt-record", "-m", "Transaction")
	require.NoError(t, r.err)
	assert.JSONEq(t, in, r.stdout)
}

func TestRecords_Array(t *testing.T) {
	setupEnv(t)

	in := `[{"id":"a-1","balance":10},{"id":"a-2","balance":20}]`
	r := runCLI(t, in, "encrypt-record", "--model", "Account")
	require.NoError(t, r.err)
	r = runCLI(t, r.stdout, "decrypt-record", "--model", "Account")
	require.NoError(t, r.err)
	assert.JSONEq(t, in, r.stdout)
}

func TestRecords_Errors(t *testing.T) {
	setupEnv(t)

	r := runCLI(t, `{}`, "encrypt-record")
	assert.ErrorContains(t, r.err, "--model is required")

	r = runCLI(t, `{}`, "decrypt-record", "--model", "Account", "--nested", cardPreset)
	assert.ErrorContains(t, r.err, "exactly one")

	r = runCLI(t, ``, "encrypt-record", "--model", "Account")
	assert.ErrorContains(t, r.err, "no input")

	r = runCLI(t, `{"id":`, "encrypt-record", "--model", "Account")
	assert.ErrorContains(t, r.err, "invalid JSON")
}

func TestDecryptRecord_ReportsFailures(t *testing.T) {
	setupEnv(t)

	r := runCLI(t, "", "encrypt", "--number", "300")
	require.NoError(t, r.err)
	token := strings.TrimSpace(r.stdout)
	tampered := token[:33] + flipHex(token[33]) + token[34:]

	in := `{"id":"a-1","balance":"` + tampered + `"}`
	r = runCLI(t, in, "decrypt-record", "--model", "Account")
	require.NoError(t, r.err)
	assert.JSONEq(t, `{"id":"a-1","balance":0}`, r.stdout)
	assert.Contains(t, r.stderr, "Account.balance")
}

func flipHex(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}

const cardPreset = fieldcrypt.CardWithInvoicesAndPurchases

func TestDecryptRecord_Nested(t *testing.T) {
	setupEnv(t)

	purchase := runCLI(t, `{"id":"p-1","value":120,"description":"Shoes"}`, "encrypt-record", "-m", "Purchase")
	require.NoError(t, purchase.err)
	invoice := runCLI(t, `{"id":"i-1","total":120}`, "encrypt-record", "-m", "Invoice")
	require.NoError(t, invoice.err)
	card := runCLI(t, `{"id":"cc-1","limit":5000}`, "encrypt-record", "-m", "CreditCard")
	require.NoError(t, card.err)

	var inv, cc map[string]any
	require.NoError(t, json.Unmarshal([]byte(invoice.stdout), &inv))
	require.NoError(t, json.Unmarshal([]byte(card.stdout), &cc))
	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(purchase.stdout), &p))
	inv["purchases"] = []any{p}
	cc["invoices"] = []any{inv}
	in, err := json.Marshal(cc)
	require.NoError(t, err)

	r := runCLI(t, string(in), "decrypt-record", "--nested", cardPreset)
	require.NoError(t, r.err)
	assert.JSONEq(t, `{"id":"cc-1","limit":5000,"invoices":[{"id":"i-1","total":120,
		"purchases":[{"id":"p-1","value":120,"description":"Shoes"}]}]}`, r.stdout)

	r = runCLI(t, string(in), "decrypt-record", "--nested", "NoSuchPreset")
	assert.Error(t, r.err)
}

func TestSchema(t *testing.T) {
	r := runCLI(t, "", "schema")
	require.NoError(t, r.err)

	reg, err := fieldcrypt.ParseSchema([]byte(r.stdout))
	require.NoError(t, err)
	assert.Equal(t, fieldcrypt.DefaultRegistry().Models(), reg.Models())

	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("version: 1\nmodels:\n  Payslip:\n    - name: gross\n      type: number\n"), 0o600))
	r = runCLI(t, "", "schema", "--file", good)
	require.NoError(t, r.err)
	assert.Contains(t, r.stderr, "1 models OK")
	assert.Contains(t, r.stdout, "Payslip")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: 1\nmodels:\n  Payslip:\n    - name: gross\n      type: date\n"), 0o600))
	r = runCLI(t, "", "schema", "--file", bad)
	assert.Error(t, r.err)
}

func TestInitConfig(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "fieldcrypt.yaml")

	r := runCLI(t, "", "init")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "wrote fieldcrypt.yaml")

	cfg, err := fieldcrypt.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Key)
	assert.Equal(t, fieldcrypt.DefaultConfig().Cache, cfg.Cache)

	r = runCLI(t, "", "init")
	assert.ErrorContains(t, r.err, "already exists")
	r = runCLI(t, "", "init", "--force")
	assert.NoError(t, r.err)

	// the key comes from the environment when the file has none
	r = runCLI(t, "", "encrypt", "--config", path, "x")
	require.NoError(t, r.err)
	assert.True(t, fieldcrypt.IsEncrypted(strings.TrimSpace(r.stdout)))
}

func TestAudit_RecordsDecryptions(t *testing.T) {
	dir := setupEnv(t)
	db := filepath.Join(dir, "audit", "events.db")

	enc := runCLI(t, `{"id":"acc-9","balance":42}`, "encrypt-record", "-m", "Account")
	require.NoError(t, enc.err)
	r := runCLI(t, enc.stdout, "decrypt-record", "-m", "Account", "--audit-db", db)
	require.NoError(t, r.err)

	r = runCLI(t, "", "audit", "query", "--db", db, "--action", "DECRYPT")
	require.NoError(t, r.err)
	var e map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(r.stdout)), &e))
	assert.Equal(t, "DECRYPT", e["action"])
	assert.Equal(t, "Account", e["model"])
	assert.Equal(t, "acc-9", e["recordId"])
	assert.Equal(t, []any{"balance"}, e["fields"])

	r = runCLI(t, "", "audit", "query", "--db", db, "--model", "Goal")
	require.NoError(t, r.err)
	assert.Empty(t, r.stdout)
}

func seedStore(t *testing.T, path string, events ...audit.Event) {
	t.Helper()
	store, err := sqlite.Open(t.Context(), path)
	require.NoError(t, err)
	defer store.Close()
	for _, e := range events {
		require.NoError(t, store.Handle(t.Context(), e))
	}
}

func TestAudit_Filters(t *testing.T) {
	db := filepath.Join(t.TempDir(), "audit.db")
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = orig })

	seedStore(t, db,
		audit.Event{ID: "old", Timestamp: fixed.Add(-48 * time.Hour), UserID: "u1", Action: audit.ActionExport, Severity: audit.SeverityWarning},
		audit.Event{ID: "new", Timestamp: fixed.Add(-time.Hour), UserID: "u1", Action: audit.ActionRead, Severity: audit.SeverityInfo},
		audit.Event{ID: "other", Timestamp: fixed.Add(-time.Hour), UserID: "u2", Action: audit.ActionRead, Severity: audit.SeverityInfo},
	)

	ids := func(out string) []string {
		var got []string
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			if line == "" {
				continue
			}
			var e audit.Event
			require.NoError(t, json.Unmarshal([]byte(line), &e))
			got = append(got, e.ID)
		}
		return got
	}

	r := runCLI(t, "", "audit", "query", "--db", db, "--user", "u1")
	require.NoError(t, r.err)
	assert.Equal(t, []string{"old", "new"}, ids(r.stdout))

	r = runCLI(t, "", "audit", "query", "--db", db, "--since", "24h")
	require.NoError(t, r.err)
	assert.Equal(t, []string{"new", "other"}, ids(r.stdout))

	r = runCLI(t, "", "audit", "query", "--db", db, "--min-severity", "warning")
	require.NoError(t, r.err)
	assert.Equal(t, []string{"old"}, ids(r.stdout))

	r = runCLI(t, "", "audit", "query", "--db", db, "--limit", "1")
	require.NoError(t, r.err)
	assert.Len(t, ids(r.stdout), 1)

	r = runCLI(t, "", "audit", "query", "--db", db, "--min-severity", "loud")
	assert.Error(t, r.err)
}

type fakeExporter struct {
	name   string
	events []audit.Event
}

func (f *fakeExporter) Export(_ context.Context, name string, events []audit.Event) (string, error) {
	f.name, f.events = name, events
	return "audit/exports/" + name + ".ndjson", nil
}

func TestAudit_Export(t *testing.T) {
	db := filepath.Join(t.TempDir(), "audit.db")
	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seedStore(t, db,
		audit.Event{ID: "e1", Timestamp: ts, Action: audit.ActionDecrypt, Severity: audit.SeverityInfo},
		audit.Event{ID: "e2", Timestamp: ts.Add(time.Second), Action: audit.ActionDelete, Severity: audit.SeverityWarning},
	)

	exp := &fakeExporter{}
	var gotBucket, gotPrefix string
	orig := newExporter
	newExporter = func(_ context.Context, bucket, prefix string) (exporter, error) {
		gotBucket, gotPrefix = bucket, prefix
		return exp, nil
	}
	t.Cleanup(func() { newExporter = orig })

	r := runCLI(t, "", "audit", "export", "--db", db, "--bucket", "ledger-audit", "--name", "march", "--action", "DELETE")
	require.NoError(t, r.err)
	assert.Equal(t, "ledger-audit", gotBucket)
	assert.Equal(t, "audit", gotPrefix)
	assert.Equal(t, "march", exp.name)
	require.Len(t, exp.events, 1)
	assert.Equal(t, "e2", exp.events[0].ID)
	assert.Equal(t, "exported 1 events to s3://ledger-audit/audit/exports/march.ndjson\n", r.stdout)

	r = runCLI(t, "", "audit", "export", "--db", db)
	assert.ErrorContains(t, r.err, "--bucket is required")
}

func TestAudit_Purge(t *testing.T) {
	db := filepath.Join(t.TempDir(), "audit.db")
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = orig })

	seedStore(t, db,
		audit.Event{ID: "ancient", Timestamp: fixed.AddDate(0, -6, 0), Action: audit.ActionRead, Severity: audit.SeverityInfo},
		audit.Event{ID: "recent", Timestamp: fixed.Add(-time.Hour), Action: audit.ActionRead, Severity: audit.SeverityInfo},
	)

	r := runCLI(t, "", "audit", "purge", "--db", db, "--older-than", "2160h")
	require.NoError(t, r.err)
	assert.Equal(t, "purged 1 events\n", r.stdout)

	r = runCLI(t, "", "audit", "purge", "--db", db)
	assert.ErrorContains(t, r.err, "--older-than")

	r = runCLI(t, "", "audit")
	assert.ErrorIs(t, r.err, errUsage)
	r = runCLI(t, "", "audit", "replay")
	assert.ErrorIs(t, r.err, errUsage)
}

type fakeWrapper struct {
	wrapped []string
}

func (f *fakeWrapper) GenerateKey(context.Context) (string, error) {
	return "generated-blob", nil
}

func (f *fakeWrapper) WrapKey(_ context.Context, hexKey string) (string, error) {
	f.wrapped = append(f.wrapped, hexKey)
	return "wrapped-" + hexKey[:8], nil
}

func TestKeygen_KMS(t *testing.T) {
	w := &fakeWrapper{}
	var gotKeyID string
	orig := newKeyWrapper
	newKeyWrapper = func(_ context.Context, keyID string) (keyWrapper, error) {
		gotKeyID = keyID
		return w, nil
	}
	t.Cleanup(func() { newKeyWrapper = orig })

	r := runCLI(t, "", "keygen", "--kms-key-id", "alias/ledger")
	require.NoError(t, r.err)
	assert.Equal(t, "alias/ledger", gotKeyID)
	assert.Equal(t, "generated-blob\n", r.stdout)
	assert.Empty(t, w.wrapped)

	r = runCLI(t, "", "keygen", "--kms-key-id", "alias/ledger", "--passphrase", "correct horse", "--salt", "pocketledger-salt")
	require.NoError(t, r.err)
	require.Len(t, w.wrapped, 1)
	assert.Equal(t, "wrapped-"+w.wrapped[0][:8]+"\n", r.stdout)

	r = runCLI(t, "", "keygen", "--kms-key-id", "k", "--vault")
	assert.ErrorContains(t, r.err, "mutually exclusive")
}

type envKeyProvider struct{ calls int }

func (p *envKeyProvider) EncryptionKey(context.Context) (string, error) {
	p.calls++
	return fieldcrypt.TestKey, nil
}

func TestKeySource(t *testing.T) {
	setupEnv(t)
	t.Setenv(fieldcrypt.EnvEncryptionKey, "")

	p := &envKeyProvider{}
	var gotSource string
	orig := keyProvider
	keyProvider = func(source string) (fieldcrypt.KeyProvider, error) {
		gotSource = source
		return p, nil
	}
	t.Cleanup(func() { keyProvider = orig })

	r := runCLI(t, "", "encrypt", "--key-source", "vault", "salary")
	require.NoError(t, r.err)
	assert.Equal(t, "vault", gotSource)
	assert.Equal(t, 1, p.calls)

	keyProvider = orig
	r = runCLI(t, "", "encrypt", "--key-source", "floppy", "x")
	assert.ErrorContains(t, r.err, `unknown key source "floppy"`)
}

func TestHealth(t *testing.T) {
	dir := setupEnv(t)

	r := runCLI(t, "", "health", "--audit-db", filepath.Join(dir, "audit.db"))
	require.NoError(t, r.err)
	var report struct {
		Status  string `json:"status"`
		Results []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &report))
	assert.Equal(t, "healthy", report.Status)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "audit_db", report.Results[0].Name)
	assert.Equal(t, "cipher", report.Results[1].Name)

	t.Setenv(fieldcrypt.EnvEncryptionKey, "not-hex")
	r = runCLI(t, "", "health")
	assert.ErrorContains(t, r.err, "unhealthy")
	assert.Contains(t, r.stdout, `"status": "unhealthy"`)
}
