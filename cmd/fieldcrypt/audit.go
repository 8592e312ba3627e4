package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketledger/fieldcrypt/audit"
	s3audit "github.com/pocketledger/fieldcrypt/providers/s3"
	"github.com/pocketledger/fieldcrypt/providers/sqlite"
	"github.com/spf13/pflag"
)

type exporter interface {
	Export(ctx context.Context, name string, events []audit.Event) (string, error)
}

// newExporter is replaced in tests.
var newExporter = func(ctx context.Context, bucket, prefix string) (exporter, error) {
	return s3audit.NewFromEnv(ctx, bucket, s3audit.WithPrefix(prefix))
}

var now = time.Now

type auditFlags struct {
	db          string
	user        string
	action      string
	model       string
	record      string
	minSeverity string
	since       time.Duration
	limit       int
}

func (f *auditFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.db, "db", "", "audit database (default .fieldcrypt/audit.db)")
	fs.StringVar(&f.user, "user", "", "only events for this user id")
	fs.StringVar(&f.action, "action", "", "only events with this action, e.g. DECRYPT")
	fs.StringVar(&f.model, "model", "", "only events for this model")
	fs.StringVar(&f.record, "record", "", "only events for this record id")
	fs.StringVar(&f.minSeverity, "min-severity", "", "INFO, NOTICE, WARNING or CRITICAL")
	fs.DurationVar(&f.since, "since", 0, "only events newer than this, e.g. 24h")
	fs.IntVar(&f.limit, "limit", 0, "maximum number of events")
}

func (f *auditFlags) filter() (audit.Filter, error) {
	filter := audit.Filter{
		UserID:   f.user,
		Action:   audit.Action(strings.ToUpper(f.action)),
		Model:    f.model,
		RecordID: f.record,
		Limit:    f.limit,
	}
	if f.minSeverity != "" {
		sev, err := audit.ParseSeverity(f.minSeverity)
		if err != nil {
			return filter, err
		}
		filter.MinSeverity = sev
	}
	if f.since > 0 {
		start := now().Add(-f.since)
		filter.StartTime = &start
	}
	return filter, nil
}

func (a *app) audit(args []string) error {
	if len(args) < 1 {
		fmt.Fprintf(a.stderr, "Usage: fieldcrypt audit <query|export|purge> [options]\n")
		return errUsage
	}
	switch args[0] {
	case "query":
		return a.auditQuery(args[1:])
	case "export":
		return a.auditExport(args[1:])
	case "purge":
		return a.auditPurge(args[1:])
	default:
		fmt.Fprintf(a.stderr, "Unknown audit command: %s\n", args[0])
		return errUsage
	}
}

// loadEvents opens the database and returns the events matching f.
func loadEvents(ctx context.Context, f *auditFlags) ([]audit.Event, error) {
	filter, err := f.filter()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(ctx, f.db)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Events(ctx, filter)
}

func (a *app) auditQuery(args []string) error {
	fs := a.newFlagSet("audit query")
	var f auditFlags
	f.register(fs)
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}

	events, err := loadEvents(context.Background(), &f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) auditExport(args []string) error {
	fs := a.newFlagSet("audit export")
	var f auditFlags
	f.register(fs)
	bucket := fs.String("bucket", "", "destination S3 bucket")
	prefix := fs.String("prefix", "audit", "key prefix inside the bucket")
	name := fs.String("name", "", "export name (default: current UTC timestamp)")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}
	if *bucket == "" {
		return errors.New("--bucket is required")
	}
	if *name == "" {
		*name = now().UTC().Format("20060102T150405Z")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	events, err := loadEvents(ctx, &f)
	if err != nil {
		return err
	}
	exp, err := newExporter(ctx, *bucket, *prefix)
	if err != nil {
		return err
	}
	key, err := exp.Export(ctx, *name, events)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "exported %d events to s3://%s/%s\n", len(events), *bucket, key)
	return nil
}

func (a *app) auditPurge(args []string) error {
	fs := a.newFlagSet("audit purge")
	db := fs.String("db", "", "audit database (default .fieldcrypt/audit.db)")
	olderThan := fs.Duration("older-than", 0, "delete events older than this, e.g. 2160h")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}
	if *olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	ctx := context.Background()
	store, err := sqlite.Open(ctx, *db)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Purge(ctx, now().Add(-*olderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "purged %d events\n", n)
	return nil
}
