package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// Result is the outcome of an atomic check-and-set against the dedup index.
type Result struct {
	AlreadyExists          bool
	ExistingNotificationID string
}

// Index suppresses duplicate submissions within a TTL window.
type Index interface {
	// CheckAndSet atomically claims the fingerprint for notificationID. When
	// the fingerprint is already claimed it returns the prior claim untouched,
	// so the loser of a concurrent race observes the winner's id.
	CheckAndSet(ctx context.Context, fingerprint string, notificationID string) (Result, error)
}

// Fingerprint derives the dedup key for a submission. Identical tenant,
// channel, recipient, and content always hash to the same value.
func Fingerprint(tenantID string, channel domain.Channel, recipient, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s",
		strings.TrimSpace(tenantID),
		strings.ToUpper(channel.String()),
		strings.TrimSpace(recipient),
		content,
	)
	return hex.EncodeToString(h.Sum(nil))
}
