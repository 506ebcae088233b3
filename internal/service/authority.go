package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/session-authority/internal/model"
	"github.com/iliyamo/session-authority/internal/queue"
)

// SessionStore is the durable record of the most-recent-known binding
// per token. Implementations must make each method a single atomic
// unit against the store; the MySQL implementation uses row-level
// locking keyed by token.
type SessionStore interface {
	// CreateDisplacing inserts a row and invalidates the user's
	// active sessions bound to other devices, returning the
	// displaced device ids.
	CreateDisplacing(ctx context.Context, s *model.Session) ([]string, error)
	// Mutate runs fn with the session row locked. fn returns
	// commit=true to persist the mutated binding/expiry/validity;
	// the write happens even when fn also returns an error.
	Mutate(ctx context.Context, token string, fn func(*model.Session) (commit bool, err error)) (model.Session, error)
	// Delete hard-deletes a row and returns it as it stood.
	Delete(ctx context.Context, token string) (model.Session, error)
	// InvalidateAllForUser soft-revokes every valid row of a user,
	// returning the revoked count and the displaced device ids.
	InvalidateAllForUser(ctx context.Context, userID uint64) (int64, []string, error)
}

// UserStore resolves usernames to user rows, creating them lazily.
type UserStore interface {
	FindOrCreate(ctx context.Context, username string) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
}

// Notifier pushes a one-shot forced-logout signal toward a device.
// Delivery is at-most-once and best-effort: a device that is not
// connected simply discovers revocation on its next verify.
type Notifier interface {
	Notify(deviceID string)
}

// AuditPublisher records session lifecycle events. Failures are the
// publisher's problem; the authority never lets them affect a caller.
type AuditPublisher interface {
	Publish(ctx context.Context, ev queue.SessionEvent) error
}

// MigrationPolicy selects how a verify from an unbound device is
// resolved. The policy is fixed per deployment, never per endpoint.
type MigrationPolicy string

const (
	// MigrateOnVerify rebinds the session to the calling device,
	// displacing the previous one: last verified device wins.
	MigrateOnVerify MigrationPolicy = "migrate"
	// RejectOnMismatch leaves the binding untouched and fails the
	// caller, forcing a re-issue.
	RejectOnMismatch MigrationPolicy = "reject"
)

// Authority bundles the codec, stores, notifier and audit trail into
// the session authority. All blocking calls are bounded by timeout.
type Authority struct {
	secret   string
	policy   MigrationPolicy
	timeout  time.Duration
	sessions SessionStore
	users    UserStore
	notifier Notifier
	audit    AuditPublisher
}

// NewAuthority wires an Authority. notifier and audit may be nil, in
// which case signals and audit events are dropped.
func NewAuthority(secret string, policy MigrationPolicy, timeout time.Duration,
	sessions SessionStore, users UserStore, notifier Notifier, audit AuditPublisher) *Authority {
	if policy != RejectOnMismatch {
		policy = MigrateOnVerify
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Authority{
		secret:   secret,
		policy:   policy,
		timeout:  timeout,
		sessions: sessions,
		users:    users,
		notifier: notifier,
		audit:    audit,
	}
}

func (a *Authority) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

// storeErr wraps any unexpected persistence failure so raw driver
// errors never reach a caller.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (a *Authority) notify(deviceID string) {
	if a.notifier != nil && deviceID != "" {
		a.notifier.Notify(deviceID)
	}
}

func (a *Authority) publish(ctx context.Context, ev queue.SessionEvent) {
	if a.audit != nil {
		_ = a.audit.Publish(ctx, ev) // best-effort, logged by the publisher
	}
}
