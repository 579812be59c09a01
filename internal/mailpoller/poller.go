// Package mailpoller is the ingestion half of the pipeline: it periodically
// scans the mailbox for dispatch fax messages, extracts their PDF
// attachments into the drop directory, and records each consumed message in
// the watermark store.
package mailpoller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ripandrun-ingest/internal/imapclient"
	"ripandrun-ingest/internal/logging"
	"ripandrun-ingest/internal/mailparse"
	"ripandrun-ingest/internal/models"
	"ripandrun-ingest/internal/watermark"

	"github.com/google/uuid"
)

// partSuffix marks attachment files not yet handed off to the queue. The
// queue only claims *.pdf, so a .part file is invisible to it.
const partSuffix = ".part"

// partPromoteAge is how old an orphaned .part file must be before a cycle
// sweep promotes it. Orphans only exist after a crash between watermark
// record and hand-off rename.
const partPromoteAge = 10 * time.Minute

const maxBackoff = 30 * time.Minute

type Poller struct {
	cfg       *models.Config
	store     watermark.Store
	newClient func() imapclient.Client
	failures  int32
}

// New creates a Poller. newClient builds a fresh IMAP client per cycle, the
// way the connection lifecycle works on flaky consumer IMAP servers.
func New(cfg *models.Config, store watermark.Store, newClient func() imapclient.Client) *Poller {
	return &Poller{
		cfg:       cfg,
		store:     store,
		newClient: newClient,
	}
}

// Run executes poll cycles until the context is cancelled. Cancellation is
// honored between cycles and between messages, never mid-extraction.
func (p *Poller) Run(ctx context.Context) {
	logging.Log.Infof("Mail poller started, day interval %s, night interval %s",
		p.cfg.Poller.DayInterval, p.cfg.Poller.NightInterval)

	for {
		if err := p.Cycle(ctx); err != nil {
			p.backoff(ctx, err)
		} else {
			p.failures = 0
		}

		interval := IntervalAt(p.cfg.Poller, time.Now())
		select {
		case <-ctx.Done():
			logging.Log.Info("Mail poller stopped")
			return
		case <-time.After(interval):
		}
	}
}

// Cycle runs one scan: sweep orphans, connect, search, extract. A returned
// error is a transport failure; per-message problems are logged and do not
// fail the cycle.
func (p *Poller) Cycle(ctx context.Context) error {
	p.promoteOrphans()

	client := p.newClient()

	if err := client.Connect(p.cfg.Email.Imap); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Login(p.cfg.Email.Login, p.cfg.Email.Password); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := client.SelectMailbox(p.cfg.Email.MailBox); err != nil {
		return fmt.Errorf("select mailbox: %w", err)
	}

	uids, err := client.ListUIDsFrom(p.cfg.TargetFrom, p.cfg.Poller.Lookback)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	// Newest first, capped per cycle. Processing stops at the first
	// already-seen message: everything older was recorded in an earlier
	// cycle.
	reverse(uids)
	if len(uids) > p.cfg.Poller.MaxPerCycle {
		uids = uids[:p.cfg.Poller.MaxPerCycle]
	}

	extracted := 0
	for _, uid := range uids {
		if ctx.Err() != nil {
			return nil
		}

		isNew, err := p.processMessage(ctx, client, uid)
		if err != nil {
			logging.Log.Errorf("Error processing message UID %d: %v", uid, err)
			continue
		}
		if !isNew {
			break
		}
		extracted++
	}

	if extracted > 0 {
		logging.Log.Infof("Extracted attachments from %d new message(s)", extracted)
	}
	return nil
}

// processMessage handles one message. Returns false when the message was
// already recorded in the watermark, which stops the scan.
func (p *Poller) processMessage(ctx context.Context, client imapclient.Client, uid uint32) (bool, error) {
	msg, err := client.FetchMessage(uid)
	if err != nil {
		return true, err
	}

	email, err := mailparse.Parse(msg)
	if err != nil {
		return true, fmt.Errorf("parse message UID %d: %w", uid, err)
	}

	if email.MessageID == "" {
		logging.Log.Warnf("Message UID %d has no Message-ID, skipping", uid)
		return true, nil
	}

	seen, err := p.store.Seen(ctx, email.MessageID)
	if err != nil {
		return true, fmt.Errorf("watermark lookup: %w", err)
	}
	if seen {
		return false, nil
	}

	locallog := logging.Log.WithField("trace_id", email.TraceID)

	if !strings.Contains(strings.ToLower(email.Subject), strings.ToLower(p.cfg.TargetSubject)) {
		locallog.Debugf("Subject does not match, recording and skipping: %s", email.Subject)
		// Recorded anyway so the scan never re-examines it
		return true, p.store.Record(ctx, email.MessageID)
	}

	locallog.Infof("Processing message from %s: %s", email.From, email.Subject)

	// Stage every attachment as a .part file, record the watermark, then
	// promote. The watermark write is the durability point: a crash before
	// it re-extracts (the .part is overwritten), a crash after it is
	// recovered by the orphan sweep. The queue never sees a partial file.
	var staged []string
	for _, att := range email.Attachments {
		path, err := p.stageAttachment(att)
		if err != nil {
			p.discard(staged)
			return true, fmt.Errorf("stage attachment: %w", err)
		}
		staged = append(staged, path)
		locallog.Infof("Staged attachment %s (%d bytes)", filepath.Base(path), len(att.Data))
	}

	if err := p.store.Record(ctx, email.MessageID); err != nil {
		p.discard(staged)
		return true, fmt.Errorf("record watermark: %w", err)
	}

	for _, path := range staged {
		if err := os.Rename(path, strings.TrimSuffix(path, partSuffix)); err != nil {
			return true, fmt.Errorf("hand off %s: %w", path, err)
		}
	}

	if len(email.Attachments) == 0 {
		locallog.Info("No document attachments in message")
	}
	return true, nil
}

// stageAttachment writes attachment bytes to a collision-resistant .part
// file in the drop directory.
func (p *Poller) stageAttachment(att models.Attachment) (string, error) {
	base := strings.TrimSuffix(att.Filename, filepath.Ext(att.Filename))
	name := fmt.Sprintf("%s_%s.pdf%s", base, uuid.New().String(), partSuffix)
	path := filepath.Join(p.cfg.Paths.Drop, name)

	if err := os.WriteFile(path, att.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (p *Poller) discard(staged []string) {
	for _, path := range staged {
		_ = os.Remove(path)
	}
}

// promoteOrphans hands off .part files left behind by a crash between the
// watermark record and the rename. Age-gated so an extraction in progress is
// never touched.
func (p *Poller) promoteOrphans() {
	entries, err := os.ReadDir(p.cfg.Paths.Drop)
	if err != nil {
		logging.Log.Errorf("Error scanning drop directory: %v", err)
		return
	}

	cutoff := time.Now().Add(-partPromoteAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		src := filepath.Join(p.cfg.Paths.Drop, entry.Name())
		dst := strings.TrimSuffix(src, partSuffix)
		if err := os.Rename(src, dst); err != nil {
			logging.Log.Errorf("Error promoting orphaned file %s: %v", entry.Name(), err)
			continue
		}
		logging.Log.Warnf("Promoted orphaned attachment %s", filepath.Base(dst))
	}
}

// backoff implements the exponential delay after repeated transport
// failures: after 5 consecutive failures, wait 5m·2ⁿ capped at 30m.
func (p *Poller) backoff(ctx context.Context, err error) {
	p.failures++
	logging.Log.Errorf("Mail poll cycle failed (%d consecutive): %v", p.failures, err)

	if p.failures < 5 {
		return
	}

	base := 5 * time.Minute
	maxSteps := int32(10)

	n := p.failures - 5
	if n > maxSteps {
		n = maxSteps
	}

	delay := base * time.Duration(1<<n)
	if delay > maxBackoff {
		delay = maxBackoff
	}

	logging.Log.Warnf("IMAP failed %d times, waiting %s before next attempt", p.failures, delay)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// IntervalAt returns the poll interval for the given wall-clock time. The
// night span may cross midnight (e.g. 23 to 6).
func IntervalAt(cfg models.PollerConfig, now time.Time) time.Duration {
	hour := now.Hour()

	var night bool
	if cfg.NightStartHour > cfg.NightEndHour {
		night = hour >= cfg.NightStartHour || hour < cfg.NightEndHour
	} else {
		night = hour >= cfg.NightStartHour && hour < cfg.NightEndHour
	}

	if night {
		return cfg.NightInterval
	}
	return cfg.DayInterval
}

func reverse(uids []uint32) {
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
}
