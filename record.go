package fieldcrypt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hengadev/errsx"
	"github.com/pocketledger/fieldcrypt/internal/schema"
)

// Record is a stored row as a bag of fields.
type Record map[string]any

// ID returns the record's "id" field rendered as a string.
func (r Record) ID() (string, bool) {
	v, ok := r["id"]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, s != ""
	}
	s, err := stringify(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return s, true
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldFailures lists the fields of one record that could not be decrypted
// and were replaced by their zero value.
type FieldFailures struct {
	Model string
	errs  map[string]error
}

func (f *FieldFailures) add(field string, err error) {
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[field] = err
}

// Fields returns the failed field names in sorted order.
func (f *FieldFailures) Fields() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.errs))
	for name := range f.errs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Failed reports whether field fell back.
func (f *FieldFailures) Failed(field string) bool {
	if f == nil {
		return false
	}
	_, ok := f.errs[field]
	return ok
}

// Cause returns the error behind a field's fallback.
func (f *FieldFailures) Cause(field string) error {
	if f == nil {
		return nil
	}
	return f.errs[field]
}

func (f *FieldFailures) Len() int {
	if f == nil {
		return 0
	}
	return len(f.errs)
}

// Err aggregates the failures into a single errsx.Map error.
func (f *FieldFailures) Err() error {
	if f.Len() == 0 {
		return nil
	}
	var errs errsx.Map
	for _, name := range f.Fields() {
		errs.Set(f.Model+"."+name, f.errs[name])
	}
	return errs.AsError()
}

// EncryptRecord returns a copy of rec with every registered field of model
// that is present and non-nil replaced by its token. Other fields are kept
// as they are and absent fields stay absent. With encryption disabled rec
// itself is returned.
func (c *Crypto) EncryptRecord(ctx context.Context, rec Record, model string) (Record, error) {
	return c.encryptRecord(ctx, rec, model, nil)
}

// EncryptFields is EncryptRecord restricted to the named fields.
func (c *Crypto) EncryptFields(ctx context.Context, rec Record, model string, fields ...string) (Record, error) {
	return c.encryptRecord(ctx, rec, model, allowList(fields))
}

// EncryptRecords encrypts every record, preserving order.
func (c *Crypto) EncryptRecords(ctx context.Context, recs []Record, model string) ([]Record, error) {
	if !c.config.Enabled {
		return recs, nil
	}
	out := make([]Record, len(recs))
	for i, rec := range recs {
		enc, err := c.encryptRecord(ctx, rec, model, nil)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = enc
	}
	return out, nil
}

func (c *Crypto) encryptRecord(_ context.Context, rec Record, model string, only map[string]struct{}) (Record, error) {
	if !c.config.Enabled || rec == nil {
		return rec, nil
	}

	out := rec.clone()
	for _, f := range c.registry.Fields(model) {
		if !allowed(only, f.Name) {
			continue
		}
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		token, err := c.Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s.%s: %w", model, f.Name, err)
		}
		out[f.Name] = token
	}
	return out, nil
}

// DecryptRecord returns a copy of rec with every registered field of model
// that holds a non-empty string decrypted to its declared type. A field
// that fails to decrypt becomes 0 or "" and the rest of the record is still
// decrypted. Errors that are not about a single value, such as a missing
// key or an unknown key version, are returned.
func (c *Crypto) DecryptRecord(ctx context.Context, rec Record, model string) (Record, error) {
	out, _, err := c.decryptRecord(ctx, rec, model, nil)
	return out, err
}

// DecryptRecordDetailed is DecryptRecord that also reports which fields fell
// back. Failures is nil when every field decrypted.
func (c *Crypto) DecryptRecordDetailed(ctx context.Context, rec Record, model string) (Record, *FieldFailures, error) {
	return c.decryptRecord(ctx, rec, model, nil)
}

// DecryptFields is DecryptRecord restricted to the named fields.
func (c *Crypto) DecryptFields(ctx context.Context, rec Record, model string, fields ...string) (Record, error) {
	out, _, err := c.decryptRecord(ctx, rec, model, allowList(fields))
	return out, err
}

// DecryptRecords decrypts every record, preserving order.
func (c *Crypto) DecryptRecords(ctx context.Context, recs []Record, model string) ([]Record, error) {
	if !c.config.Enabled {
		return recs, nil
	}
	out := make([]Record, len(recs))
	for i, rec := range recs {
		dec, _, err := c.decryptRecord(ctx, rec, model, nil)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

// DecryptRecordCached reads rec's decryption from cache by model and id,
// decrypting and storing it on a miss. Records without an id and a nil
// cache are decrypted directly. Each call returns its own copy.
func (c *Crypto) DecryptRecordCached(ctx context.Context, cache *DecryptionCache, rec Record, model string) (Record, error) {
	id, ok := rec.ID()
	if !ok {
		return c.DecryptRecord(ctx, rec, model)
	}
	out, err := GetOrDecrypt(ctx, cache, model, id, func(ctx context.Context) (Record, error) {
		return c.DecryptRecord(ctx, rec, model)
	})
	if err != nil {
		return nil, err
	}
	return out.clone(), nil
}

func (c *Crypto) decryptRecord(ctx context.Context, rec Record, model string, only map[string]struct{}) (Record, *FieldFailures, error) {
	if !c.config.Enabled || rec == nil {
		return rec, nil, nil
	}

	out := rec.clone()
	var failures *FieldFailures
	var decrypted []string
	for _, f := range c.registry.Fields(model) {
		if !allowed(only, f.Name) {
			continue
		}
		s, ok := rec[f.Name].(string)
		if !ok || s == "" {
			continue
		}

		var (
			value any
			err   error
		)
		switch f.Type {
		case schema.Number:
			value, err = c.DecryptNumber(s)
		default:
			value, err = c.DecryptString(s)
		}
		if err != nil {
			if !IsDataError(err) {
				return nil, nil, err
			}
			if failures == nil {
				failures = &FieldFailures{Model: model}
			}
			failures.add(f.Name, err)
			value = zeroValue(f.Type)
			c.recorder.RecordFieldFallback(model, f.Name)
			c.logger.WarnContext(ctx, "field decryption failed, using fallback",
				slog.String("model", model),
				slog.String("field", f.Name),
				slog.Any("error", err))
		} else if IsEncrypted(s) {
			decrypted = append(decrypted, f.Name)
		}
		out[f.Name] = value
	}

	if c.auditor != nil && len(decrypted) > 0 {
		id, _ := rec.ID()
		c.auditor.LogDecryption(ctx, "", model, id, decrypted)
	}
	return out, failures, nil
}

func zeroValue(t schema.FieldType) any {
	if t == schema.Number {
		return float64(0)
	}
	return ""
}

// allowList returns nil, meaning every field, when fields is empty.
func allowList(fields []string) map[string]struct{} {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

func allowed(only map[string]struct{}, field string) bool {
	if only == nil {
		return true
	}
	_, ok := only[field]
	return ok
}
