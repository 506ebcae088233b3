package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/session-authority/internal/model"
	"github.com/iliyamo/session-authority/internal/queue"
	"github.com/iliyamo/session-authority/internal/repository"
	"github.com/iliyamo/session-authority/internal/utils"
)

// IssuedToken is the result of a successful issuance.
type IssuedToken struct {
	Token     string
	Username  string
	DeviceID  string
	ExpiresAt time.Time
}

// Issue mints a signed token for a user and reconciles it with the
// session store. The user row is resolved first (created on first
// sight), then the session row is inserted; the insert atomically
// invalidates any active session of the same user bound to a
// different device, so the device named here becomes the only one
// that subsequently verifies. Displaced devices are pushed a
// forced-logout signal.
//
// deviceID may be empty when issuance and device binding are split;
// the row's binding stays NULL until RegisterDevice or the first
// verify fills it. expiration may lie in the past: such a token is
// legal and simply never verifies.
func (a *Authority) Issue(ctx context.Context, username, deviceID, expiration string) (IssuedToken, error) {
	username = strings.TrimSpace(username)
	deviceID = strings.TrimSpace(deviceID)
	if username == "" || expiration == "" {
		return IssuedToken{}, ErrMissingParameters
	}
	expiresAt, err := utils.ParseExpiration(expiration)
	if err != nil {
		return IssuedToken{}, ErrInvalidExpiration
	}

	token, err := utils.MintSessionToken(a.secret, username, deviceID, expiresAt)
	if err != nil {
		return IssuedToken{}, storeErr(err)
	}

	cctx, cancel := a.bound(ctx)
	defer cancel()

	u, err := a.users.FindOrCreate(cctx, username)
	if err != nil {
		return IssuedToken{}, storeErr(err)
	}

	s := model.Session{
		Token:     token,
		UserID:    u.ID,
		Username:  username,
		ExpiresAt: expiresAt,
		Valid:     true,
	}
	if deviceID != "" {
		s.DeviceID = &deviceID
	}
	displaced, err := a.sessions.CreateDisplacing(cctx, &s)
	if err != nil {
		return IssuedToken{}, storeErr(err)
	}
	for _, d := range displaced {
		a.notify(d)
	}

	ev := queue.NewEvent(queue.EventIssued)
	ev.Username = username
	ev.TokenRef = queue.TokenRef(token)
	ev.DeviceID = deviceID
	a.publish(ctx, ev)

	return IssuedToken{Token: token, Username: username, DeviceID: deviceID, ExpiresAt: expiresAt}, nil
}

// RegisterDevice binds a device to a session issued without one. A
// re-registration from the currently bound device is a no-op; one
// from a different device follows the deployment's migration policy,
// displacing and notifying the previous holder under MigrateOnVerify.
func (a *Authority) RegisterDevice(ctx context.Context, token, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if token == "" || deviceID == "" {
		return ErrMissingParameters
	}
	if _, err := utils.VerifySessionToken(a.secret, token); err != nil && !errors.Is(err, utils.ErrTokenExpired) {
		return ErrInvalidToken
	}

	cctx, cancel := a.bound(ctx)
	defer cancel()

	now := time.Now().UTC()
	var displaced string
	_, err := a.sessions.Mutate(cctx, token, func(s *model.Session) (bool, error) {
		if !s.ExpiresAt.After(now) {
			s.Valid = false
			return true, ErrExpired
		}
		if !s.Valid {
			return false, ErrRevoked
		}
		switch {
		case s.DeviceID == nil:
			s.DeviceID = &deviceID
			return true, nil
		case *s.DeviceID == deviceID:
			return false, nil
		case a.policy == RejectOnMismatch, s.Migrated:
			return false, ErrDeviceMismatch
		default:
			displaced = *s.DeviceID
			s.DeviceID = &deviceID
			s.Migrated = true
			return true, nil
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNotFound
		}
		if isTaxonomy(err) {
			return err
		}
		return storeErr(err)
	}
	if displaced != "" {
		a.notify(displaced)
		ev := queue.NewEvent(queue.EventMigrated)
		ev.TokenRef = queue.TokenRef(token)
		ev.DeviceID = deviceID
		ev.FromDevice = displaced
		a.publish(ctx, ev)
	}
	return nil
}

// isTaxonomy reports whether err is one of the authority's own error
// kinds, as opposed to a raw store failure that still needs wrapping.
func isTaxonomy(err error) bool {
	for _, known := range []error{
		ErrMissingParameters, ErrInvalidExpiration, ErrInvalidToken,
		ErrNotFound, ErrExpired, ErrRevoked, ErrDeviceMismatch, ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
