package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/session-authority/internal/model"
	"github.com/iliyamo/session-authority/internal/queue"
	"github.com/iliyamo/session-authority/internal/repository"
)

const testSecret = "unit-test-secret"

// memSessions is an in-memory SessionStore. A single mutex stands in
// for the row locks the MySQL implementation takes, which preserves
// the atomicity contract the authority relies on.
type memSessions struct {
	mu   sync.Mutex
	rows map[string]*model.Session
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]*model.Session)}
}

func (m *memSessions) CreateDisplacing(_ context.Context, s *model.Session) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// token is the primary key; a colliding insert fails as it would
	// against MySQL.
	if _, ok := m.rows[s.Token]; ok {
		return nil, errors.New("duplicate entry for key 'PRIMARY'")
	}
	now := time.Now().UTC()
	var displaced []string
	for _, r := range m.rows {
		if r.UserID != s.UserID || !r.Active(now) || r.DeviceID == nil {
			continue
		}
		if s.DeviceID != nil && *r.DeviceID == *s.DeviceID {
			continue
		}
		r.Valid = false
		displaced = append(displaced, *r.DeviceID)
	}
	cp := *s
	m.rows[s.Token] = &cp
	return displaced, nil
}

func (m *memSessions) Mutate(_ context.Context, token string, fn func(*model.Session) (bool, error)) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[token]
	if !ok {
		return model.Session{}, repository.ErrSessionNotFound
	}
	cp := *r
	commit, err := fn(&cp)
	if commit {
		*r = cp
	}
	return cp, err
}

func (m *memSessions) Delete(_ context.Context, token string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[token]
	if !ok {
		return model.Session{}, repository.ErrSessionNotFound
	}
	delete(m.rows, token)
	return *r, nil
}

func (m *memSessions) InvalidateAllForUser(_ context.Context, userID uint64) (int64, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var count int64
	var displaced []string
	for _, r := range m.rows {
		if r.UserID != userID || !r.Valid {
			continue
		}
		if r.Active(now) && r.DeviceID != nil {
			displaced = append(displaced, *r.DeviceID)
		}
		r.Valid = false
		count++
	}
	return count, displaced, nil
}

type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	byName map[string]model.User
}

func newMemUsers() *memUsers { return &memUsers{byName: make(map[string]model.User)} }

func (m *memUsers) FindOrCreate(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byName[username]; ok {
		return u, nil
	}
	m.nextID++
	u := model.User{ID: m.nextID, Username: username, CreatedAt: time.Now().UTC()}
	m.byName[username] = u
	return u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byName[username]; ok {
		return u, nil
	}
	return model.User{}, repository.ErrUserNotFound
}

type recordingNotifier struct {
	mu      sync.Mutex
	signals []string
}

func (n *recordingNotifier) Notify(deviceID string) {
	n.mu.Lock()
	n.signals = append(n.signals, deviceID)
	n.mu.Unlock()
}

func (n *recordingNotifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.signals...)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []queue.SessionEvent
}

func (a *recordingAudit) Publish(_ context.Context, ev queue.SessionEvent) error {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
	return nil
}

func newTestAuthority(policy MigrationPolicy) (*Authority, *memSessions, *recordingNotifier) {
	sessions := newMemSessions()
	notifier := &recordingNotifier{}
	a := NewAuthority(testSecret, policy, 2*time.Second,
		sessions, newMemUsers(), notifier, &recordingAudit{})
	return a, sessions, notifier
}

func TestIssueThenVerifySameDevice(t *testing.T) {
	a, _, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	out, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)
	require.NotEmpty(t, out.Token)

	res, err := a.Verify(ctx, out.Token, "phoneA")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.True(t, res.ExpiresAt.Equal(out.ExpiresAt))
}

func TestIssueYieldsDistinctSessions(t *testing.T) {
	a, sessions, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	// Back-to-back logins with identical inputs land in the same
	// wall-clock second; each must still get its own token and row.
	first, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)
	second, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	sessions.mu.Lock()
	assert.Len(t, sessions.rows, 2)
	sessions.mu.Unlock()

	_, err = a.Verify(ctx, first.Token, "phoneA")
	assert.NoError(t, err)
	_, err = a.Verify(ctx, second.Token, "phoneA")
	assert.NoError(t, err)
}

func TestIssueValidation(t *testing.T) {
	a, _, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	_, err := a.Issue(ctx, "", "phoneA", "2099-01-01")
	assert.ErrorIs(t, err, ErrMissingParameters)

	_, err = a.Issue(ctx, "alice", "phoneA", "")
	assert.ErrorIs(t, err, ErrMissingParameters)

	_, err = a.Issue(ctx, "alice", "phoneA", "not-a-date")
	assert.ErrorIs(t, err, ErrInvalidExpiration)
}

func TestIssueDisplacesOtherDevices(t *testing.T) {
	a, _, notifier := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	first, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)

	// A login from a new device makes it the only device that
	// subsequently verifies.
	second, err := a.Issue(ctx, "alice", "laptopB", "2099-01-01")
	require.NoError(t, err)
	assert.Contains(t, notifier.got(), "phoneA")

	_, err = a.Verify(ctx, first.Token, "phoneA")
	assert.ErrorIs(t, err, ErrRevoked)

	_, err = a.Verify(ctx, second.Token, "laptopB")
	assert.NoError(t, err)
}

// The canonical lifecycle: issue on phoneA, migrate to laptopB on
// verify, reject the displaced device, hard delete.
func TestMigrationLifecycle(t *testing.T) {
	a, _, notifier := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	out, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)

	res, err := a.Verify(ctx, out.Token, "phoneA")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)

	// Different device: migrates and succeeds, displacing phoneA.
	res, err = a.Verify(ctx, out.Token, "laptopB")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.Contains(t, notifier.got(), "phoneA")

	// The displaced device cannot steal the binding back.
	_, err = a.Verify(ctx, out.Token, "phoneA")
	assert.ErrorIs(t, err, ErrDeviceMismatch)

	// The current holder still verifies.
	_, err = a.Verify(ctx, out.Token, "laptopB")
	require.NoError(t, err)

	require.NoError(t, a.Delete(ctx, out.Token))

	_, err = a.Verify(ctx, out.Token, "laptopB")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectPolicyLeavesBindingUntouched(t *testing.T) {
	a, sessions, notifier := newTestAuthority(RejectOnMismatch)
	ctx := context.Background()

	out, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)

	_, err = a.Verify(ctx, out.Token, "laptopB")
	assert.ErrorIs(t, err, ErrDeviceMismatch)
	assert.Empty(t, notifier.got())

	row := sessions.rows[out.Token]
	require.NotNil(t, row.DeviceID)
	assert.Equal(t, "phoneA", *row.DeviceID)

	_, err = a.Verify(ctx, out.Token, "phoneA")
	assert.NoError(t, err)
}

func TestExpiredIsTerminal(t *testing.T) {
	a, sessions, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	// An already-expired expiration is legal input at issue time.
	out, err := a.Issue(ctx, "alice", "phoneA", "2000-01-01T00:00:00Z")
	require.NoError(t, err)

	_, err = a.Verify(ctx, out.Token, "phoneA")
	assert.ErrorIs(t, err, ErrExpired)

	// The transition persisted: the row is invalid, and a second
	// identical request observes the same terminal state.
	assert.False(t, sessions.rows[out.Token].Valid)
	_, err = a.Verify(ctx, out.Token, "phoneA")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsForgedAndUnknownTokens(t *testing.T) {
	a, _, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	_, err := a.Verify(ctx, "not-even-a-jwt", "phoneA")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Genuine signature, but the store never saw it (or deleted it;
	// the two are indistinguishable).
	other := NewAuthority(testSecret, MigrateOnVerify, time.Second,
		newMemSessions(), newMemUsers(), nil, nil)
	out, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)
	_, err = other.Verify(ctx, out.Token, "phoneA")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidateAllSparesOtherUsers(t *testing.T) {
	a, _, notifier := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	alicePhone, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)
	alicePhone2, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)
	bob, err := a.Issue(ctx, "bob", "tabletC", "2099-01-01")
	require.NoError(t, err)

	count, err := a.InvalidateAll(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Contains(t, notifier.got(), "phoneA")

	for _, tok := range []string{alicePhone.Token, alicePhone2.Token} {
		_, err = a.Verify(ctx, tok, "phoneA")
		assert.ErrorIs(t, err, ErrRevoked)
	}
	_, err = a.Verify(ctx, bob.Token, "tabletC")
	assert.NoError(t, err)

	// Unknown users revoke nothing and do not error.
	count, err = a.InvalidateAll(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExtendExpiration(t *testing.T) {
	a, _, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	out, err := a.Issue(ctx, "alice", "phoneA", "2000-01-01T00:00:00Z")
	require.NoError(t, err)

	_, err = a.Verify(ctx, out.Token, "phoneA")
	require.ErrorIs(t, err, ErrExpired)

	// A past instant can never resurrect a session.
	_, err = a.ExtendExpiration(ctx, out.Token, "2001-01-01T00:00:00Z")
	assert.ErrorIs(t, err, ErrInvalidExpiration)

	// A future one revives even an expired-and-invalidated row.
	ext, err := a.ExtendExpiration(ctx, out.Token, "2099-06-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, out.Token, ext.Token)

	res, err := a.Verify(ctx, out.Token, "phoneA")
	require.NoError(t, err)
	assert.True(t, res.ExpiresAt.Equal(ext.ExpiresAt))

	_, err = a.ExtendExpiration(ctx, "unknown-token", "2099-06-01T00:00:00Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterDeviceBindsUnboundSession(t *testing.T) {
	a, _, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	// Issuance and device binding split into two steps.
	out, err := a.Issue(ctx, "alice", "", "2099-01-01")
	require.NoError(t, err)

	require.NoError(t, a.RegisterDevice(ctx, out.Token, "phoneA"))

	_, err = a.Verify(ctx, out.Token, "phoneA")
	assert.NoError(t, err)

	// Re-registering the same device is a no-op.
	require.NoError(t, a.RegisterDevice(ctx, out.Token, "phoneA"))
}

func TestConcurrentVerifyLeavesOneBinding(t *testing.T) {
	a, sessions, _ := newTestAuthority(MigrateOnVerify)
	ctx := context.Background()

	out, err := a.Issue(ctx, "alice", "phoneA", "2099-01-01")
	require.NoError(t, err)

	// Two devices race on the same token. At most one migration can
	// win; the loser is rejected, never silently granted.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, dev := range []string{"laptopB", "tabletC"} {
		wg.Add(1)
		go func(i int, dev string) {
			defer wg.Done()
			_, errs[i] = a.Verify(ctx, out.Token, dev)
		}(i, dev)
	}
	wg.Wait()

	var granted int
	for _, err := range errs {
		if err == nil {
			granted++
		} else {
			assert.ErrorIs(t, err, ErrDeviceMismatch)
		}
	}
	assert.Equal(t, 1, granted)

	row := sessions.rows[out.Token]
	require.NotNil(t, row.DeviceID)
	assert.True(t, row.Migrated)
}
