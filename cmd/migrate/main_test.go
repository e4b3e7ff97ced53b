package main

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"testing"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_statements.sql", true, 1, "create_statements"},
		{"0002_create_transactions.sql", true, 2, "create_transactions"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := migrationFileRe.FindStringSubmatch(tt.filename)
			if !tt.valid {
				if matches != nil {
					t.Fatalf("expected %q to be rejected, got matches %v", tt.filename, matches)
				}
				return
			}
			if matches == nil {
				t.Fatalf("expected %q to match", tt.filename)
			}
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				t.Fatalf("version %q: %v", matches[1], err)
			}
			if version != tt.version {
				t.Errorf("version = %d, want %d", version, tt.version)
			}
			if matches[2] != tt.name {
				t.Errorf("name = %q, want %q", matches[2], tt.name)
			}
		})
	}
}

func TestMigrationChecksumConsistency(t *testing.T) {
	content1 := []byte("CREATE TABLE test (id INT64);")
	content2 := []byte("CREATE TABLE test (id INT64);")
	content3 := []byte("CREATE TABLE other (id INT64);")

	sum1 := fmt.Sprintf("%x", sha256.Sum256(content1))
	sum2 := fmt.Sprintf("%x", sha256.Sum256(content2))
	sum3 := fmt.Sprintf("%x", sha256.Sum256(content3))

	if sum1 != sum2 {
		t.Errorf("identical content produced different checksums: %s vs %s", sum1, sum2)
	}
	if sum1 == sum3 {
		t.Errorf("different content produced the same checksum: %s", sum1)
	}
}
