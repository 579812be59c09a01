// Package filequeue drains the drop directory: each cycle it claims
// documents one at a time, runs recognition, builds the incident record, and
// persists it. Documents that cannot be processed are moved byte-for-byte to
// the quarantine directory, never deleted.
package filequeue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ripandrun-ingest/internal/logging"
	"ripandrun-ingest/internal/models"
	"ripandrun-ingest/internal/recognition"
	"ripandrun-ingest/internal/record"
	"ripandrun-ingest/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// claimSuffix marks a document this process is working on. The rename is the
// atomic claim: two scanners of the same directory cannot both claim one
// file.
const claimSuffix = ".claimed"

// staleClaimAge is how old a .claimed file must be before it is handed back
// to the queue. Claims only go stale when a process dies mid-document.
const staleClaimAge = 15 * time.Minute

// storageRetryDelay is the pause before the single in-attempt storage retry,
// which reuses the cached recognition output. Variable so tests can shrink it.
var storageRetryDelay = 5 * time.Second

type Queue struct {
	cfg        *models.Config
	recognizer recognition.Client
	builder    *record.Builder
	store      store.Store

	// transient-failure counts per document name, in-memory: a restart
	// grants a fresh retry budget, which only delays quarantine.
	retries map[string]int
}

func New(cfg *models.Config, recognizer recognition.Client, builder *record.Builder, st store.Store) *Queue {
	return &Queue{
		cfg:        cfg,
		recognizer: recognizer,
		builder:    builder,
		store:      st,
		retries:    make(map[string]int),
	}
}

// Run executes queue cycles until the context is cancelled. Cancellation is
// honored between documents, never mid-document.
func (q *Queue) Run(ctx context.Context) {
	logging.Log.Infof("File queue started, interval %s, max retries %d",
		q.cfg.Queue.Interval, q.cfg.Queue.MaxRetries)

	ticker := time.NewTicker(q.cfg.Queue.Interval)
	defer ticker.Stop()

	for {
		q.Cycle(ctx)

		select {
		case <-ctx.Done():
			logging.Log.Info("File queue stopped")
			return
		case <-ticker.C:
		}
	}
}

// Cycle processes every document currently in the drop directory, oldest
// first, one at a time.
func (q *Queue) Cycle(ctx context.Context) {
	q.recoverStaleClaims()

	docs, err := q.discover()
	if err != nil {
		logging.Log.Errorf("Error scanning drop directory: %v", err)
		return
	}

	for _, name := range docs {
		if ctx.Err() != nil {
			return
		}
		q.processDocument(ctx, name)
	}
}

// discover lists unclaimed documents in the drop directory, oldest first
func (q *Queue) discover() ([]string, error) {
	entries, err := os.ReadDir(q.cfg.Paths.Drop)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		name    string
		modTime time.Time
	}

	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{name: entry.Name(), modTime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].modTime.Before(found[j].modTime)
	})

	names := make([]string, len(found))
	for i, c := range found {
		names[i] = c.name
	}
	return names, nil
}

// processDocument claims, recognizes, builds, and persists one document,
// then routes it to deletion, retry, or quarantine.
func (q *Queue) processDocument(ctx context.Context, name string) {
	path := filepath.Join(q.cfg.Paths.Drop, name)
	claimed := path + claimSuffix

	// Atomic claim; losing the race just means someone else has it
	if err := os.Rename(path, claimed); err != nil {
		return
	}

	locallog := logging.Log.WithField("trace_id", uuid.New().String()).WithField("document", name)

	data, err := os.ReadFile(claimed)
	if err != nil {
		locallog.Errorf("Error reading claimed document: %v", err)
		q.unclaim(path, claimed)
		return
	}

	out, err := q.recognizer.Recognize(ctx, data)
	if err != nil {
		if recognition.IsRetryable(err) {
			locallog.Warnf("Transient recognition failure: %v", err)
			q.retryOrQuarantine(locallog, name, path, claimed)
			return
		}
		locallog.Errorf("Document illegible: %v", err)
		q.quarantine(locallog, name, claimed)
		return
	}

	rec, err := q.builder.Build(out)
	if err != nil {
		// Only possible build failure is the missing identifier
		locallog.Errorf("Cannot build incident record: %v", err)
		q.quarantine(locallog, name, claimed)
		return
	}

	if err := q.persist(ctx, rec); err != nil {
		if store.IsRetryable(err) {
			locallog.Warnf("Storage unavailable: %v", err)
			q.retryOrQuarantine(locallog, name, path, claimed)
			return
		}
		locallog.Errorf("Storage rejected record: %v", err)
		q.quarantine(locallog, name, claimed)
		return
	}

	if err := os.Remove(claimed); err != nil {
		locallog.Errorf("Error removing processed document: %v", err)
	}
	delete(q.retries, name)

	locallog.Infof("Persisted incident %d unit %s (%d field error(s))",
		rec.IncidentNumber, rec.UnitID, len(rec.Errors))
}

// persist upserts the record, retrying once in-attempt on StorageUnavailable
// with the already-built record, so recognition is not re-invoked for a
// storage-only failure.
func (q *Queue) persist(ctx context.Context, rec *models.IncidentRecord) error {
	err := q.store.Upsert(ctx, rec)
	if err == nil || !store.IsRetryable(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(storageRetryDelay):
	}

	return q.store.Upsert(ctx, rec)
}

// retryOrQuarantine puts the document back for the next cycle, or moves it
// to quarantine once the retry budget is spent.
func (q *Queue) retryOrQuarantine(locallog *logrus.Entry, name, path, claimed string) {
	q.retries[name]++
	if q.retries[name] > q.cfg.Queue.MaxRetries {
		logging.Log.WithField("document", name).
			Errorf("Retry budget exhausted after %d attempts, quarantining", q.retries[name])
		q.quarantine(locallog, name, claimed)
		return
	}
	q.unclaim(path, claimed)
}

func (q *Queue) unclaim(path, claimed string) {
	if err := os.Rename(claimed, path); err != nil {
		logging.Log.Errorf("Error unclaiming %s: %v", claimed, err)
	}
}

// quarantine moves the claimed document, bytes untouched, into the
// quarantine directory under its original name.
func (q *Queue) quarantine(locallog *logrus.Entry, name, claimed string) {
	dst := filepath.Join(q.cfg.Paths.Quarantine, name)

	if err := moveFile(claimed, dst); err != nil {
		locallog.Errorf("Error quarantining document: %v", err)
		return
	}
	delete(q.retries, name)
	logging.Log.WithField("document", name).Warnf("Document quarantined at %s", dst)
}

// moveFile renames, falling back to copy+remove when the quarantine
// directory is on another filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s: %w", src, err)
	}
	return nil
}

// recoverStaleClaims hands back .claimed files older than staleClaimAge,
// left behind when a previous process died mid-document.
func (q *Queue) recoverStaleClaims() {
	entries, err := os.ReadDir(q.cfg.Paths.Drop)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-staleClaimAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), claimSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		claimed := filepath.Join(q.cfg.Paths.Drop, entry.Name())
		original := strings.TrimSuffix(claimed, claimSuffix)
		if err := os.Rename(claimed, original); err != nil {
			logging.Log.Errorf("Error recovering stale claim %s: %v", entry.Name(), err)
			continue
		}
		logging.Log.Warnf("Recovered stale claim %s", entry.Name())
	}
}
