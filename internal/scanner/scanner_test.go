package scanner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/vodsync/internal/shared"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScan(t *testing.T) {
	t.Run("pairs both naming conventions", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "alice", "s1", "Big Win [100]-info.json"), `{"started_at":"2024-03-02T10:00:00Z"}`)
		writeFile(t, filepath.Join(root, "alice", "s1", "Big Win [100]-video.mp4"), "")
		writeFile(t, filepath.Join(root, "alice", "2024-01-01 flat [200].json"), `{}`)
		writeFile(t, filepath.Join(root, "alice", "2024-01-01 flat [200].mkv"), "")

		candidates, err := New(root, shared.NewLogger(&bytes.Buffer{})).Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if len(candidates) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(candidates))
		}
		if candidates[0].ID != "200" || candidates[1].ID != "100" {
			t.Errorf("unexpected order: %s, %s", candidates[0].ID, candidates[1].ID)
		}
		if candidates[1].StartedAt == nil {
			t.Error("expected StartedAt parsed from sidecar")
		}
		if !strings.HasSuffix(candidates[0].MediaPath, ".mkv") {
			t.Errorf("expected mkv media path, got %s", candidates[0].MediaPath)
		}
		for _, c := range candidates {
			if c.Owner != "alice" {
				t.Errorf("owner = %q, want alice", c.Owner)
			}
		}
	})

	t.Run("orders by owner then time then id with unknown last", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "zed", "a [9].json"), `{"started_at":"2020-01-01T00:00:00Z"}`)
		writeFile(t, filepath.Join(root, "zed", "a [9].mp4"), "")
		writeFile(t, filepath.Join(root, "bob", "x [3].json"), `{}`)
		writeFile(t, filepath.Join(root, "bob", "x [3].mp4"), "")
		writeFile(t, filepath.Join(root, "bob", "y [2].json"), `{}`)
		writeFile(t, filepath.Join(root, "bob", "y [2].mp4"), "")
		writeFile(t, filepath.Join(root, "bob", "z [5].json"), `{"started_at":"2024-05-01T00:00:00Z"}`)
		writeFile(t, filepath.Join(root, "bob", "z [5].mp4"), "")
		writeFile(t, filepath.Join(root, "bob", "w [6].json"), `{"started_at":"2023-05-01T00:00:00Z"}`)
		writeFile(t, filepath.Join(root, "bob", "w [6].mp4"), "")

		candidates, err := New(root, shared.NewLogger(&bytes.Buffer{})).Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}

		var ids []string
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}
		want := "6,5,2,3,9"
		if got := strings.Join(ids, ","); got != want {
			t.Errorf("order = %s, want %s", got, want)
		}
	})

	t.Run("corrupt sidecar yields empty map", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "carol", "s", "broken [77]-info.json"), `{not json`)
		writeFile(t, filepath.Join(root, "carol", "s", "broken [77]-video.mp4"), "")

		var logs bytes.Buffer
		candidates, err := New(root, shared.NewLogger(&logs)).Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if len(candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(candidates))
		}
		if candidates[0].Sidecar == nil || len(candidates[0].Sidecar) != 0 {
			t.Errorf("expected empty sidecar map, got %v", candidates[0].Sidecar)
		}
		if !strings.Contains(logs.String(), "corrupt sidecar") {
			t.Error("expected a warning for the corrupt sidecar")
		}
	})

	t.Run("skips files without identifier or media", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "dave", "noid-info.json"), `{}`)
		writeFile(t, filepath.Join(root, "dave", "noid-video.mp4"), "")
		writeFile(t, filepath.Join(root, "dave", "orphan [1]-info.json"), `{}`)

		candidates, err := New(root, shared.NewLogger(&bytes.Buffer{})).Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if len(candidates) != 0 {
			t.Errorf("expected no candidates, got %d", len(candidates))
		}
	})

	t.Run("drops duplicate identifiers", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "erin", "s1", "a [5]-info.json"), `{}`)
		writeFile(t, filepath.Join(root, "erin", "s1", "a [5]-video.mp4"), "")
		writeFile(t, filepath.Join(root, "erin", "s2", "b [5]-info.json"), `{}`)
		writeFile(t, filepath.Join(root, "erin", "s2", "b [5]-video.mp4"), "")

		candidates, err := New(root, shared.NewLogger(&bytes.Buffer{})).Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if len(candidates) != 1 {
			t.Errorf("expected 1 candidate after dedup, got %d", len(candidates))
		}
	})

	t.Run("missing root is an error", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "nope"), nil).Scan(context.Background())
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "f", "a [1].json"), `{}`)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := New(root, nil).Scan(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
