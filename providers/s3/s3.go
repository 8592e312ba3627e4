package s3audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pocketledger/fieldcrypt/audit"
)

var ErrEmptyExport = errors.New("no events to export")

// PutObjectAPI is the part of *s3.Client the handler uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Handler archives audit events to S3, one JSON object per event under
// prefix/yyyy/mm/dd/<event id>.json. Wrap it in audit.NewAsyncHandler to
// keep uploads off the request path.
type Handler struct {
	client PutObjectAPI
	bucket string
	prefix string
	sse    types.ServerSideEncryption
}

type Option func(*Handler)

// WithPrefix sets the key prefix. Defaults to "audit".
func WithPrefix(prefix string) Option {
	return func(h *Handler) { h.prefix = prefix }
}

// WithServerSideEncryption requests SSE on every object, for example
// types.ServerSideEncryptionAwsKms.
func WithServerSideEncryption(sse types.ServerSideEncryption) Option {
	return func(h *Handler) { h.sse = sse }
}

func New(client PutObjectAPI, bucket string, opts ...Option) *Handler {
	h := &Handler{
		client: client,
		bucket: bucket,
		prefix: "audit",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewFromEnv creates a Handler with an S3 client built from the default AWS
// configuration chain (environment, shared config, instance role).
func NewFromEnv(ctx context.Context, bucket string, opts ...Option) (*Handler, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, opts...), nil
}

// ObjectKey returns the key an event is stored under. The date is the
// event's UTC date.
func (h *Handler) ObjectKey(e audit.Event) string {
	ts := e.Timestamp.UTC()
	return path.Join(h.prefix, ts.Format("2006/01/02"), e.ID+".json")
}

// Handle uploads one event.
func (h *Handler) Handle(ctx context.Context, e audit.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	key := h.ObjectKey(e)
	if err := h.put(ctx, key, body, "application/json", map[string]string{
		"action":   string(e.Action),
		"severity": e.Severity.String(),
	}); err != nil {
		return fmt.Errorf("upload event %s to s3://%s/%s: %w", e.ID, h.bucket, key, err)
	}
	return nil
}

// Export writes events as newline-delimited JSON to a single object and
// returns its key, prefix/exports/<name>.ndjson.
func (h *Handler) Export(ctx context.Context, name string, events []audit.Event) (string, error) {
	if len(events) == 0 {
		return "", ErrEmptyExport
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
	}

	key := path.Join(h.prefix, "exports", name+".ndjson")
	if err := h.put(ctx, key, buf.Bytes(), "application/x-ndjson", nil); err != nil {
		return "", fmt.Errorf("upload export to s3://%s/%s: %w", h.bucket, key, err)
	}
	return key, nil
}

func (h *Handler) put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata:      metadata,
	}
	if h.sse != "" {
		input.ServerSideEncryption = h.sse
	}
	_, err := h.client.PutObject(ctx, input)
	return err
}
