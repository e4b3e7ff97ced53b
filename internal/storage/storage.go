package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Service is the storage surface the handlers and pipeline depend on.
// Gateway is the GCS implementation; tests substitute fakes.
type Service interface {
	// Upload writes data to bucket/object and returns its gs:// URI.
	// Uploading to an existing object path overwrites it.
	Upload(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error)

	// Fetch downloads the object bytes for the given gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Gateway talks to Google Cloud Storage through a shared client constructed
// once at process start.
type Gateway struct {
	client *gcs.Client
}

// Options configures the gateway. Zero values mean library defaults
// (Application Default Credentials, public endpoint).
type Options struct {
	Endpoint        string
	CredentialsFile string
}

// New creates a storage gateway with a shared client.
func New(ctx context.Context, opts Options) (*Gateway, error) {
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Gateway{client: client}, nil
}

// Close releases the underlying client.
func (g *Gateway) Close() error {
	return g.client.Close()
}

// Upload writes data into bucket/object and returns the gs:// URI.
func (g *Gateway) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy bytes to storage writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}

// Fetch downloads the file bytes from the given gs:// URI.
func (g *Gateway) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open storage object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read storage object: %w", err)
	}
	return data, nil
}

// ParseURI splits a gs://bucket/path URI into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid storage URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid storage URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a gs:// URI.
// e.g. "gs://bucket/folder/file.pdf" -> "file.pdf"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// ObjectPath builds the object name for an upload: files are namespaced by
// user and named by a fresh UUID plus the original extension, so paths are
// unique per upload.
func ObjectPath(userID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), ext)
}

var _ Service = (*Gateway)(nil)
