package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *bytes.Buffer { return &bytes.Buffer{} }

func TestLedger(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "uploaded_ids.json")
		l, err := OpenLedger(path, shared.NewLogger(quietLogger()))
		require.NoError(t, err)
		assert.Equal(t, 0, l.Len())
		assert.False(t, l.Contains("1"))

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "opening must not create the file")
	})

	t.Run("record persists immediately", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "uploaded_ids.json")
		l, err := OpenLedger(path, nil)
		require.NoError(t, err)

		require.NoError(t, l.Record("42"))
		require.NoError(t, l.Record("43"))
		require.NoError(t, l.Record("42"))

		reopened, err := OpenLedger(path, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"42", "43"}, reopened.IDs())
		assert.True(t, reopened.Contains("43"))
	})

	t.Run("numbers are stringified and duplicates dropped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "uploaded_ids.json")
		require.NoError(t, os.WriteFile(path, []byte(`[123456789012, "7", "7", 123456789012, "", null]`), 0o644))

		l, err := OpenLedger(path, shared.NewLogger(quietLogger()))
		require.NoError(t, err)
		assert.Equal(t, []string{"123456789012", "7"}, l.IDs())
	})

	t.Run("corrupt file is moved aside", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "uploaded_ids.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"not":"a list"}`), 0o644))

		var logs bytes.Buffer
		l, err := OpenLedger(path, shared.NewLogger(&logs))
		require.NoError(t, err)
		assert.Equal(t, 0, l.Len())
		assert.Contains(t, logs.String(), "corrupt")

		matches, _ := filepath.Glob(path + ".corrupt-*")
		require.Len(t, matches, 1)
		data, _ := os.ReadFile(matches[0])
		assert.Equal(t, `{"not":"a list"}`, string(data))
	})

	t.Run("trailing data after the list is corrupt", func(t *testing.T) {
		for _, content := range []string{`["1"] xyz`, `["1"]]`, `["1"]["2"]`} {
			path := filepath.Join(t.TempDir(), "uploaded_ids.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			l, err := OpenLedger(path, shared.NewLogger(quietLogger()))
			require.NoError(t, err)
			assert.Equal(t, 0, l.Len(), content)
			matches, _ := filepath.Glob(path + ".corrupt-*")
			assert.Len(t, matches, 1, content)
		}
	})

	t.Run("trailing newline is fine", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "uploaded_ids.json")
		require.NoError(t, os.WriteFile(path, []byte("[\"1\"]\n\n"), 0o644))

		l, err := OpenLedger(path, shared.NewLogger(quietLogger()))
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, l.IDs())
	})

	t.Run("write failure rolls back", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))

		l, err := OpenLedger(filepath.Join(blocker, "uploaded_ids.json"), nil)
		require.NoError(t, err)

		err = l.Record("99")
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrStateWrite))

		var stateErr *StateError
		assert.True(t, errors.As(err, &stateErr))
		assert.False(t, l.Contains("99"))
		assert.Equal(t, 0, l.Len())
	})
}

type fakePlaylists struct {
	existing  map[string]string
	created   []string
	findErr   error
	createErr error
}

func (f *fakePlaylists) FindPlaylist(_ context.Context, title string) (string, bool, error) {
	if f.findErr != nil {
		return "", false, f.findErr
	}
	id, ok := f.existing[title]
	return id, ok, nil
}

func (f *fakePlaylists) CreatePlaylist(_ context.Context, title, description string, _ models.Visibility) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, title+"|"+description)
	return "PL-" + strings.ReplaceAll(title, " ", "-"), nil
}

func TestPlaylistDirectory(t *testing.T) {
	ctx := context.Background()

	t.Run("creates at most once per owner across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlists.json")
		svc := &fakePlaylists{}

		d, err := OpenPlaylistDirectory(path, svc, PlaylistDefaults{}, nil)
		require.NoError(t, err)

		id, err := d.ResolveOrCreate(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "PL-alice-VODs", id)

		again, err := d.ResolveOrCreate(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, id, again)

		reopened, err := OpenPlaylistDirectory(path, svc, PlaylistDefaults{}, nil)
		require.NoError(t, err)
		third, err := reopened.ResolveOrCreate(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, id, third)

		require.Len(t, svc.created, 1)
		assert.Equal(t, "alice VODs|Automatically created playlist for alice", svc.created[0])
	})

	t.Run("adopts an existing playlist by title", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlists.json")
		svc := &fakePlaylists{existing: map[string]string{"bob VODs": "PL-existing"}}

		d, err := OpenPlaylistDirectory(path, svc, PlaylistDefaults{}, nil)
		require.NoError(t, err)

		id, err := d.ResolveOrCreate(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "PL-existing", id)
		assert.Empty(t, svc.created)

		got, ok := d.Lookup("bob")
		assert.True(t, ok)
		assert.Equal(t, "PL-existing", got)
	})

	t.Run("failure wraps sentinel and cause without persisting", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlists.json")
		svc := &fakePlaylists{createErr: shared.ErrQuotaExceeded}

		d, err := OpenPlaylistDirectory(path, svc, PlaylistDefaults{}, nil)
		require.NoError(t, err)

		_, err = d.ResolveOrCreate(ctx, "carol")
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrPlaylistCreate)
		assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
		assert.Empty(t, d.Entries())

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("invalid entries are ignored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlists.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"alice":"PL1","bob":5,"carol":""}`), 0o644))

		d, err := OpenPlaylistDirectory(path, nil, PlaylistDefaults{}, shared.NewLogger(quietLogger()))
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"alice": "PL1"}, d.Entries())
	})

	t.Run("without a service a miss fails", func(t *testing.T) {
		d, err := OpenPlaylistDirectory(filepath.Join(t.TempDir(), "p.json"), nil, PlaylistDefaults{}, nil)
		require.NoError(t, err)
		_, err = d.ResolveOrCreate(ctx, "dave")
		assert.ErrorIs(t, err, shared.ErrPlaylistCreate)
	})
}

func TestQuotaGate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("trip blocks until resume and survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "quota_state.json")
		g, err := OpenQuotaGate(path, nil)
		require.NoError(t, err)

		blocked, _ := g.Blocked(now)
		assert.False(t, blocked)

		resume, err := g.Trip(now, 24*time.Hour)
		require.NoError(t, err)
		assert.True(t, resume.Equal(now.Add(24*time.Hour)))

		reopened, err := OpenQuotaGate(path, nil)
		require.NoError(t, err)

		blocked, at := reopened.Blocked(now.Add(time.Hour))
		assert.True(t, blocked)
		assert.True(t, at.Equal(resume))

		blocked, _ = reopened.Blocked(resume)
		assert.False(t, blocked, "gate opens once now >= resume_at")
	})

	t.Run("clear removes the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "quota_state.json")
		g, err := OpenQuotaGate(path, nil)
		require.NoError(t, err)
		_, err = g.Trip(now, time.Hour)
		require.NoError(t, err)

		require.NoError(t, g.Clear())
		assert.Nil(t, g.ResumeAt())
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
		require.NoError(t, g.Clear())
	})

	t.Run("accepts null and bare timestamps", func(t *testing.T) {
		dir := t.TempDir()
		nullPath := filepath.Join(dir, "null.json")
		require.NoError(t, os.WriteFile(nullPath, []byte(`{"resume_at": null}`), 0o644))
		g, err := OpenQuotaGate(nullPath, nil)
		require.NoError(t, err)
		assert.Nil(t, g.ResumeAt())

		barePath := filepath.Join(dir, "bare.json")
		require.NoError(t, os.WriteFile(barePath, []byte(`"2024-05-02T12:00:00Z"`), 0o644))
		g, err = OpenQuotaGate(barePath, nil)
		require.NoError(t, err)
		blocked, _ := g.Blocked(now)
		assert.True(t, blocked)
	})

	t.Run("corrupt state opens the gate", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "quota_state.json")
		require.NoError(t, os.WriteFile(path, []byte(`[[[`), 0o644))
		g, err := OpenQuotaGate(path, shared.NewLogger(quietLogger()))
		require.NoError(t, err)
		blocked, _ := g.Blocked(now)
		assert.False(t, blocked)
	})
}

func TestRunLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".vodsync.lock")

	first := NewRunLock(path)
	require.NoError(t, first.TryLock())

	second := NewRunLock(path)
	err := second.TryLock()
	assert.ErrorIs(t, err, shared.ErrRunLocked)

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
	require.NoError(t, second.Unlock())
}
