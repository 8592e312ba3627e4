package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pocketledger/fieldcrypt"
)

type recordFlags struct {
	cryptoFlags
	model  string
	nested string
}

// readRecords reads one JSON object or an array of objects.
func readRecords(r io.Reader) ([]fieldcrypt.Record, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, errors.New("no input on stdin")
	}
	if data[0] == '[' {
		var recs []fieldcrypt.Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, false, fmt.Errorf("invalid JSON input: %w", err)
		}
		return recs, true, nil
	}
	var rec fieldcrypt.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("invalid JSON input: %w", err)
	}
	return []fieldcrypt.Record{rec}, false, nil
}

func (a *app) writeRecords(recs []fieldcrypt.Record, array bool) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if array {
		return enc.Encode(recs)
	}
	return enc.Encode(recs[0])
}

func (a *app) encryptRecord(args []string) error {
	fs := a.newFlagSet("encrypt-record")
	var f recordFlags
	f.register(fs)
	fs.StringVarP(&f.model, "model", "m", "", "model name, e.g. Transaction")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}
	if f.model == "" {
		return errors.New("--model is required")
	}

	c, closeAudit, err := a.crypto(&f.cryptoFlags)
	if err != nil {
		return err
	}
	defer closeAudit()
	recs, array, err := readRecords(a.stdin)
	if err != nil {
		return err
	}
	out, err := c.EncryptRecords(context.Background(), recs, f.model)
	if err != nil {
		return err
	}
	return a.writeRecords(out, array)
}

func (a *app) decryptRecord(args []string) error {
	fs := a.newFlagSet("decrypt-record")
	var f recordFlags
	f.register(fs)
	fs.StringVarP(&f.model, "model", "m", "", "model name, e.g. Transaction")
	fs.StringVar(&f.nested, "nested", "", "nested preset ("+strings.Join(fieldcrypt.NestedConfigNames(), ", ")+")")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}
	if (f.model == "") == (f.nested == "") {
		return errors.New("exactly one of --model or --nested is required")
	}

	c, closeAudit, err := a.crypto(&f.cryptoFlags)
	if err != nil {
		return err
	}
	defer closeAudit()
	recs, array, err := readRecords(a.stdin)
	if err != nil {
		return err
	}

	ctx := context.Background()
	out := make([]fieldcrypt.Record, len(recs))
	for i, rec := range recs {
		if f.nested != "" {
			out[i], err = c.DecryptWithConfig(ctx, rec, f.nested)
			if err != nil {
				return err
			}
			continue
		}
		dec, failures, err := c.DecryptRecordDetailed(ctx, rec, f.model)
		if err != nil {
			return err
		}
		if failures != nil {
			for _, field := range failures.Fields() {
				fmt.Fprintf(a.stderr, "warning: record %d: %s.%s: %v\n", i, f.model, field, failures.Cause(field))
			}
		}
		out[i] = dec
	}
	return a.writeRecords(out, array)
}
