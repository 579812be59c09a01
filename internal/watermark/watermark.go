// Package watermark persists the set of mailbox Message-IDs whose
// attachments have already been extracted. Recording is write-ahead with
// respect to hand-off: a message counts as consumed only once its ID is
// durably stored, so a crash between extraction and recording re-extracts
// rather than drops.
package watermark

import "context"

// Store is the seen-message cursor used by the mail poller
type Store interface {
	// Seen reports whether the Message-ID has already been recorded
	Seen(ctx context.Context, messageID string) (bool, error)
	// Record durably marks the Message-ID as consumed
	Record(ctx context.Context, messageID string) error
	Close() error
}
