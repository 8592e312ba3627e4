package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pocketledger/fieldcrypt/internal/health"
	"github.com/pocketledger/fieldcrypt/providers/sqlite"
)

// health reports whether the key loads and, with --audit-db, whether the
// audit database is reachable. It fails when a critical check fails.
func (a *app) health(args []string) error {
	fs := a.newFlagSet("health")
	var cf cryptoFlags
	cf.register(fs)
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}
	auditDB := cf.auditDB
	// the audit database is probed below, not attached to the crypto
	cf.auditDB = ""

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	checker := health.NewChecker("fieldcrypt", version)
	c, closeAudit, err := a.crypto(&cf)
	if err != nil {
		return err
	}
	defer closeAudit()
	if err := checker.Register(health.Check{Name: "cipher", Critical: true, Func: c.SelfTest}); err != nil {
		return err
	}

	if auditDB != "" {
		store, err := sqlite.Open(ctx, auditDB)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := checker.Register(health.Check{Name: "audit_db", Func: store.Ping}); err != nil {
			return err
		}
	}

	report := checker.Run(ctx)
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy {
		return errors.New("unhealthy")
	}
	return nil
}
