package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{
			name:       "simple object",
			uri:        "gs://statements/user-1/file.pdf",
			wantBucket: "statements",
			wantObject: "user-1/file.pdf",
		},
		{
			name:       "nested path",
			uri:        "gs://bucket/a/b/c.png",
			wantBucket: "bucket",
			wantObject: "a/b/c.png",
		},
		{name: "missing scheme", uri: "statements/file.pdf", wantErr: true},
		{name: "http scheme", uri: "https://example.com/file.pdf", wantErr: true},
		{name: "bucket only", uri: "gs://statements", wantErr: true},
		{name: "empty object", uri: "gs://statements/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantObject, object)
		})
	}
}

func TestFilenameFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/folder/file.pdf", "file.pdf"},
		{"gs://bucket/file.pdf", "file.pdf"},
		{"gs://bucket/a/b/scan.png", "scan.png"},
		{"gs://bucket", "bucket"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FilenameFromURI(tt.uri), "uri %s", tt.uri)
	}
}

func TestObjectPath(t *testing.T) {
	p := ObjectPath("user-1", "Statement Jan.PDF")

	// user prefix, UUID name, lowercased original extension
	assert.True(t, strings.HasPrefix(p, "user-1/"), "path %s", p)
	assert.True(t, strings.HasSuffix(p, ".pdf"), "path %s", p)

	name := strings.TrimSuffix(strings.TrimPrefix(p, "user-1/"), ".pdf")
	assert.Len(t, name, 36, "expected a UUID object name, got %s", name)

	// Repeated uploads of the same filename get distinct paths.
	assert.NotEqual(t, p, ObjectPath("user-1", "Statement Jan.PDF"))

	noExt := ObjectPath("user-2", "statement")
	assert.True(t, strings.HasPrefix(noExt, "user-2/"))
	assert.NotContains(t, noExt, ".")
}
