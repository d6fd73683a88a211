package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileCamera_DrivesSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.txt")
	if err := os.WriteFile(path, []byte("\n\n  \nattend:abc-123-def-456-ghi\nattend:abc-123-def-456-ghi\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	v := &fakeVerifier{}
	s := NewSession(FileCamera{Path: path}, v)
	defer s.Close()

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Payload != "attend:abc-123-def-456-ghi" {
		t.Errorf("payload=%q", res.Payload)
	}
	if n := len(v.Calls()); n != 1 {
		t.Fatalf("verify calls=%d, want 1", n)
	}
}

func TestFileCamera_MissingFileIsPermissionDenied(t *testing.T) {
	s := NewSession(FileCamera{Path: filepath.Join(t.TempDir(), "none.txt")}, &fakeVerifier{})
	defer s.Close()

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Failure == nil || res.Failure.Class != ClassPermissionDenied {
		t.Fatalf("result=%+v", res)
	}
	if !errors.Is(res.Failure, os.ErrNotExist) {
		t.Errorf("failure=%v", res.Failure)
	}
}
