package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/valter-silva-au/meridian/pkg/models"
)

func testTranscript(runID string, at time.Time) models.Transcript {
	return models.Transcript{
		RunID:      runID,
		ScenarioID: "report-export-blank",
		Outcome:    models.OutcomeReset,
		Resolved:   true,
		ArchivedAt: at,
		Snapshot: models.Snapshot{
			RunID:               runID,
			ScenarioID:          "report-export-blank",
			Phase:               models.PhaseResolved,
			IsResolved:          true,
			CurrentMessageIndex: 0,
			Messages: []models.ChatMessage{
				{ID: "msg-1", Sender: models.SenderCustomer, Name: "Lee", Text: "The PDF is blank.", Timestamp: "09:30"},
			},
			Events: []models.CopilotEvent{
				{ID: "evt-1", Kind: models.EventThinking, Thinking: &models.ThinkingPayload{Steps: []string{"Reading"}}},
				{ID: "evt-2", Kind: models.EventLearn, Learn: &models.LearnPayload{DraftID: "DRAFT-1", Status: models.DraftApproved}},
			},
			Notes: []string{"customer on v7.2"},
		},
	}
}

func TestFileTranscriptStore_ArchiveAndGet(t *testing.T) {
	store := NewFileTranscriptStore(filepath.Join(t.TempDir(), "transcripts"))
	ctx := context.Background()
	want := testTranscript("run-1", time.Date(2026, 1, 15, 9, 45, 0, 0, time.UTC))

	if err := store.Archive(ctx, want); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.Get(ctx, "run-404"); !errors.Is(err, ErrTranscriptNotFound) {
		t.Errorf("err = %v, want ErrTranscriptNotFound", err)
	}
	if err := store.Archive(ctx, models.Transcript{}); err == nil {
		t.Error("expected an error for an empty run id")
	}
}

func TestFileTranscriptStore_ListNewestFirst(t *testing.T) {
	store := NewFileTranscriptStore(t.TempDir())
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-c", "run-b"} {
		if err := store.Archive(ctx, testTranscript(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Archive %s: %v", id, err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, tr := range all {
		ids = append(ids, tr.RunID)
	}
	if diff := cmp.Diff([]string{"run-b", "run-c", "run-a"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	two, err := store.List(ctx, 2)
	if err != nil || len(two) != 2 {
		t.Errorf("List(2) = %d transcripts, %v", len(two), err)
	}
}

func TestFileTranscriptStore_ListMissingDir(t *testing.T) {
	store := NewFileTranscriptStore(filepath.Join(t.TempDir(), "never-created"))
	got, err := store.List(context.Background(), 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("List = %v, %v", got, err)
	}
}

func TestNewTranscriptStore(t *testing.T) {
	base := t.TempDir()

	store, err := NewTranscriptStore(models.TranscriptConfig{Backend: "file", Dir: "archive"}, base)
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	if err := store.Archive(context.Background(), testTranscript("run-1", time.Now().UTC())); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "archive", "run-1.yaml")); err != nil {
		t.Errorf("transcript not written under base path: %v", err)
	}

	rs, err := NewTranscriptStore(models.TranscriptConfig{Backend: "redis", RedisURL: "redis://localhost:6379/3"}, base)
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	if _, ok := rs.(*redisTranscriptStore); !ok {
		t.Errorf("redis backend built %T", rs)
	}
	_ = rs.Close()

	if _, err := NewTranscriptStore(models.TranscriptConfig{Backend: "redis", RedisURL: "::bad"}, base); err == nil {
		t.Error("expected an error for a bad redis url")
	}
	if _, err := NewTranscriptStore(models.TranscriptConfig{Backend: "s3"}, base); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func newMiniredisStore(t *testing.T) (*miniredis.Miniredis, TranscriptStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisTranscriptStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func TestRedisTranscriptStore(t *testing.T) {
	mr, store := newMiniredisStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < maxTranscripts+5; i++ {
		id := fmt.Sprintf("run-%03d", i)
		if err := store.Archive(ctx, testTranscript(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Archive: %v", err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != maxTranscripts {
		t.Errorf("List = %d transcripts, want capped at %d", len(all), maxTranscripts)
	}
	if all[0].RunID != fmt.Sprintf("run-%03d", maxTranscripts+4) {
		t.Errorf("newest = %s, want the last archived run", all[0].RunID)
	}
	if all[0].ArchivedAt.Before(all[len(all)-1].ArchivedAt) {
		t.Error("List should return newest first")
	}

	limited, err := store.List(ctx, 3)
	if err != nil || len(limited) != 3 {
		t.Errorf("List(3) = %d, %v", len(limited), err)
	}

	if ttl := mr.TTL(transcriptPrefix + all[0].RunID); ttl != transcriptTTL {
		t.Errorf("transcript TTL = %v, want %v", ttl, transcriptTTL)
	}
	if ttl := mr.TTL(transcriptIndex); ttl != transcriptTTL {
		t.Errorf("index TTL = %v, want %v", ttl, transcriptTTL)
	}

	got, err := store.Get(ctx, all[0].RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(all[0], *got); diff != "" {
		t.Errorf("Get mismatch (-list +get):\n%s", diff)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrTranscriptNotFound) {
		t.Errorf("err = %v, want ErrTranscriptNotFound", err)
	}
}

func TestRedisTranscriptStore_RearchiveMovesToFront(t *testing.T) {
	mr, store := newMiniredisStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-a"} {
		if err := store.Archive(ctx, testTranscript(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Archive(%s): %v", id, err)
		}
	}

	index, err := mr.List(transcriptIndex)
	if err != nil {
		t.Fatalf("reading index: %v", err)
	}
	if diff := cmp.Diff([]string{"run-a", "run-b"}, index); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || !all[0].ArchivedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("List = %+v, want run-a with its latest archive first", all)
	}
}

func TestRedisTranscriptStore_Expired(t *testing.T) {
	mr, store := newMiniredisStore(t)
	ctx := context.Background()

	if err := store.Archive(ctx, testTranscript("run-old", time.Now().UTC())); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	mr.FastForward(transcriptTTL + time.Second)

	if _, err := store.Get(ctx, "run-old"); !errors.Is(err, ErrTranscriptNotFound) {
		t.Errorf("err = %v, want ErrTranscriptNotFound after expiry", err)
	}
	all, err := store.List(ctx, 0)
	if err != nil || len(all) != 0 {
		t.Errorf("List = %d, %v; want nothing after expiry", len(all), err)
	}
}
