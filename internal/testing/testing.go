// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/services"
)

// UploadCall is one recorded invocation of [FakeUploader.Upload].
type UploadCall struct {
	MediaPath string
	Meta      models.UploadMetadata
}

// FakeUploader is a test double for [services.Uploader].
//
// Respond decides the result of each call; the zero value succeeds every time.
type FakeUploader struct {
	mu      sync.Mutex
	Calls   []UploadCall
	Respond func(call int, mediaPath string, meta models.UploadMetadata) (services.UploadResult, error)
}

func (f *FakeUploader) Upload(ctx context.Context, mediaPath string, meta models.UploadMetadata) (services.UploadResult, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, UploadCall{MediaPath: mediaPath, Meta: meta})
	n := len(f.Calls)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return services.UploadResult{ExitCode: -1}, err
	}
	if f.Respond == nil {
		return services.UploadResult{VideoID: "video-" + meta.Title}, nil
	}
	return f.Respond(n, mediaPath, meta)
}

// CallCount returns the number of uploads attempted so far.
func (f *FakeUploader) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Fail returns an uploader result with a non-zero exit and the given diagnostic.
func Fail(diagnostic string) services.UploadResult {
	return services.UploadResult{ExitCode: 1, Diagnostic: diagnostic}
}

// FakePlaylistService is a test double for store.PlaylistService.
type FakePlaylistService struct {
	Existing  map[string]string // title → id returned by FindPlaylist
	CreateErr error
	FindErr   error
	Creates   []string // titles passed to CreatePlaylist
}

func (f *FakePlaylistService) FindPlaylist(_ context.Context, title string) (string, bool, error) {
	if f.FindErr != nil {
		return "", false, f.FindErr
	}
	id, ok := f.Existing[title]
	return id, ok, nil
}

func (f *FakePlaylistService) CreatePlaylist(_ context.Context, title, _ string, _ models.Visibility) (string, error) {
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.Creates = append(f.Creates, title)
	return "PL-" + title, nil
}

// MemoryLedger is an in-memory ledger. RecordErr makes every Record call fail.
type MemoryLedger struct {
	IDs       []string
	RecordErr error
}

func (m *MemoryLedger) Contains(id string) bool {
	for _, v := range m.IDs {
		if v == id {
			return true
		}
	}
	return false
}

func (m *MemoryLedger) Record(id string) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	if !m.Contains(id) {
		m.IDs = append(m.IDs, id)
	}
	return nil
}

// RecordingNotifier collects every message sent to it.
type RecordingNotifier struct {
	mu       sync.Mutex
	Messages []services.Message
	Err      error
}

func (r *RecordingNotifier) Notify(_ context.Context, msg services.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, msg)
	return r.Err
}

// Titles returns the titles of the collected messages in order.
func (r *RecordingNotifier) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	titles := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		titles[i] = m.Title
	}
	return titles
}

// MemoryJournal stores attempt and run records in memory.
type MemoryJournal struct {
	Attempts []models.AttemptRecord
	Runs     []models.RunRecord
	Err      error
}

func (j *MemoryJournal) RecordAttempt(rec models.AttemptRecord) error {
	j.Attempts = append(j.Attempts, rec)
	return j.Err
}

func (j *MemoryJournal) RecordRun(rec models.RunRecord) error {
	j.Runs = append(j.Runs, rec)
	return j.Err
}

// FakeRenewal is a test double for the credential renewal waiter.
type FakeRenewal struct {
	Calls int
	Err   error
}

func (f *FakeRenewal) WaitForRenewal(context.Context) error {
	f.Calls++
	return f.Err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// WriteVOD creates a media file and its sidecar for owner under root.
//
// stem is the shared file name prefix, e.g. "2024-03-02 Big_Win [123]".
// A nil sidecar writes "{}".
func WriteVOD(t *testing.T, root, owner, stem string, sidecar map[string]any) (media, meta string) {
	t.Helper()
	dir := filepath.Join(root, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create owner directory: %v", err)
	}

	if sidecar == nil {
		sidecar = map[string]any{}
	}
	data, err := json.Marshal(sidecar)
	if err != nil {
		t.Fatalf("Failed to encode sidecar: %v", err)
	}

	media = filepath.Join(dir, stem+"-video.mp4")
	meta = filepath.Join(dir, stem+"-info.json")
	if err := os.WriteFile(media, []byte("media"), 0o644); err != nil {
		t.Fatalf("Failed to write media file: %v", err)
	}
	if err := os.WriteFile(meta, data, 0o644); err != nil {
		t.Fatalf("Failed to write sidecar: %v", err)
	}
	return media, meta
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
