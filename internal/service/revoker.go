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

// Delete hard-deletes a session row. The removal is irreversible: the
// store stays authoritative over the codec, so even a bit-identical
// signed string never re-validates. The bound device, if connected,
// is pushed a forced-logout signal.
func (a *Authority) Delete(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingParameters
	}

	cctx, cancel := a.bound(ctx)
	defer cancel()

	s, err := a.sessions.Delete(cctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNotFound
		}
		return storeErr(err)
	}
	if s.DeviceID != nil {
		a.notify(*s.DeviceID)
	}

	ev := queue.NewEvent(queue.EventRevoked)
	ev.Username = s.Username
	ev.TokenRef = queue.TokenRef(token)
	if s.DeviceID != nil {
		ev.DeviceID = *s.DeviceID
	}
	a.publish(ctx, ev)
	return nil
}

// InvalidateAll soft-revokes every session owned by the user: the
// "logout everywhere" path. Rows are kept (valid=0) for audit
// history, each displaced connected device gets a forced-logout push,
// and the number of revoked sessions is returned. An unknown username
// revokes nothing and reports zero.
func (a *Authority) InvalidateAll(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, ErrMissingParameters
	}

	cctx, cancel := a.bound(ctx)
	defer cancel()

	u, err := a.users.GetByUsername(cctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, nil
		}
		return 0, storeErr(err)
	}
	count, displaced, err := a.sessions.InvalidateAllForUser(cctx, u.ID)
	if err != nil {
		return 0, storeErr(err)
	}
	for _, d := range displaced {
		a.notify(d)
	}

	ev := queue.NewEvent(queue.EventForceLogout)
	ev.Username = username
	ev.Count = count
	a.publish(ctx, ev)
	return count, nil
}

// ExtendExpiration rewrites a session's expiry in place, even on an
// expired or revoked row. The new instant must lie strictly in the
// future.
func (a *Authority) ExtendExpiration(ctx context.Context, token, expiration string) (IssuedToken, error) {
	token = strings.TrimSpace(token)
	if token == "" || expiration == "" {
		return IssuedToken{}, ErrMissingParameters
	}
	expiresAt, err := utils.ParseExpiration(expiration)
	if err != nil || !expiresAt.After(time.Now().UTC()) {
		return IssuedToken{}, ErrInvalidExpiration
	}

	cctx, cancel := a.bound(ctx)
	defer cancel()

	s, err := a.sessions.Mutate(cctx, token, func(s *model.Session) (bool, error) {
		s.ExpiresAt = expiresAt
		s.Valid = true
		return true, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return IssuedToken{}, ErrNotFound
		}
		return IssuedToken{}, storeErr(err)
	}

	ev := queue.NewEvent(queue.EventExtended)
	ev.Username = s.Username
	ev.TokenRef = queue.TokenRef(token)
	a.publish(ctx, ev)

	out := IssuedToken{Token: token, Username: s.Username, ExpiresAt: expiresAt}
	if s.DeviceID != nil {
		out.DeviceID = *s.DeviceID
	}
	return out, nil
}
