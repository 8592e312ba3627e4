package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pocketledger/fieldcrypt"
	"github.com/pocketledger/fieldcrypt/internal/cipher"
)

func (a *app) encrypt(args []string) error {
	fs := a.newFlagSet("encrypt")
	var cf cryptoFlags
	cf.register(fs)
	number := fs.Bool("number", false, "parse arguments as numbers")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}

	c, closeAudit, err := a.crypto(&cf)
	if err != nil {
		return err
	}
	defer closeAudit()
	for _, arg := range fs.Args() {
		var v any = arg
		if *number {
			n, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("%q is not a number", arg)
			}
			v = n
		}
		token, err := c.Encrypt(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, token)
	}
	return nil
}

func (a *app) decrypt(args []string) error {
	fs := a.newFlagSet("decrypt")
	var cf cryptoFlags
	cf.register(fs)
	number := fs.Bool("number", false, "decrypt as numbers")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}

	c, closeAudit, err := a.crypto(&cf)
	if err != nil {
		return err
	}
	defer closeAudit()
	for _, arg := range fs.Args() {
		if *number {
			n, err := c.DecryptNumber(arg)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, strconv.FormatFloat(n, 'f', -1, 64))
			continue
		}
		s, err := c.DecryptString(arg)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, s)
	}
	return nil
}

type tokenInfo struct {
	Value         string `json:"value"`
	Encrypted     bool   `json:"encrypted"`
	IVBytes       int    `json:"ivBytes,omitempty"`
	TagBytes      int    `json:"tagBytes,omitempty"`
	CipherBytes   int    `json:"ciphertextBytes,omitempty"`
	PlaintextSize int    `json:"plaintextBytes,omitempty"`
}

// inspect needs no key.
func (a *app) inspect(args []string) error {
	fs := a.newFlagSet("inspect")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}

	enc := json.NewEncoder(a.stdout)
	for _, arg := range fs.Args() {
		info := tokenInfo{Value: truncateValue(arg), Encrypted: fieldcrypt.IsEncrypted(arg)}
		if info.Encrypted {
			parts := strings.Split(arg, ":")
			info.IVBytes = len(parts[0]) / 2
			info.TagBytes = len(parts[1]) / 2
			info.CipherBytes = len(parts[2]) / 2
			// GCM does not pad
			info.PlaintextSize = info.CipherBytes
		}
		if err := enc.Encode(info); err != nil {
			return err
		}
	}
	return nil
}

func truncateValue(s string) string {
	const max = 2*cipher.IVLength + 8
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
