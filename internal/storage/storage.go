package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value object store.
type Store interface {
	// Put writes body under key, replacing any existing object.
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// Get reads the object under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// URI returns a human-readable location for key.
	URI(key string) string
}

// S3Options configures S3 destinations.
type S3Options struct {
	Region      string
	EndpointURL string // custom endpoint for S3-compatible services
}

// Open returns the store for a destination URI.
func Open(ctx context.Context, destination string, opts S3Options) (Store, error) {
	if destination == "" {
		return nil, errors.New("empty destination")
	}

	switch {
	case strings.HasPrefix(destination, "s3://"):
		bucket, prefix, err := ParseS3URI(destination)
		if err != nil {
			return nil, err
		}
		client, err := NewS3Client(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewS3(client, bucket, prefix), nil

	case strings.HasPrefix(destination, "file://"):
		u, err := url.Parse(destination)
		if err != nil {
			return nil, fmt.Errorf("parse destination %q: %w", destination, err)
		}
		return NewLocal(u.Path), nil

	case destination == "mem://":
		return NewMemory(), nil

	case strings.Contains(destination, "://"):
		return nil, fmt.Errorf("unsupported destination scheme: %q", destination)

	default:
		return NewLocal(destination), nil
	}
}

// ParseS3URI splits s3://bucket/prefix into bucket and prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}
