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

// VerifyResult is the read-path answer: who the caller is and when
// the session row (not the signed payload) says the grant ends.
type VerifyResult struct {
	Username  string
	ExpiresAt time.Time
}

// Verify is the read path run on every protected request. It checks
// the credential's signature, then resolves the authoritative session
// row in one atomic unit: the expiry transition, the revocation check
// and the device-migration decision all happen with the row locked,
// so two concurrent verifies from different devices cannot both win.
//
// The embedded exp claim is only an integrity check here; the row's
// expiry wins in both directions, which is what lets an extended
// session outlive its minted lifetime.
//
// Under MigrateOnVerify a request from an unbound device rebinds the
// row to the caller, fires a forced-logout signal at the displaced
// device and succeeds. A row migrates at most once: after that, a
// mismatched device fails with ErrDeviceMismatch instead of
// displacing the current holder, so two devices cannot trade the
// binding back and forth. Under RejectOnMismatch every mismatch
// fails and the binding is never touched.
func (a *Authority) Verify(ctx context.Context, token, deviceID string) (VerifyResult, error) {
	token = strings.TrimSpace(token)
	deviceID = strings.TrimSpace(deviceID)
	if token == "" || deviceID == "" {
		return VerifyResult{}, ErrMissingParameters
	}
	if _, err := utils.VerifySessionToken(a.secret, token); err != nil && !errors.Is(err, utils.ErrTokenExpired) {
		return VerifyResult{}, ErrInvalidToken
	}

	cctx, cancel := a.bound(ctx)
	defer cancel()

	now := time.Now().UTC()
	var displaced string
	s, err := a.sessions.Mutate(cctx, token, func(s *model.Session) (bool, error) {
		// Lazy expiry: the transition to invalid is persisted before
		// responding so an identical follow-up request observes it.
		if !s.ExpiresAt.After(now) {
			s.Valid = false
			return true, ErrExpired
		}
		if !s.Valid {
			return false, ErrRevoked
		}
		switch {
		case s.DeviceID == nil:
			// Issued without a binding; first verifier claims it.
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
			return VerifyResult{}, ErrNotFound
		}
		if isTaxonomy(err) {
			return VerifyResult{}, err
		}
		return VerifyResult{}, storeErr(err)
	}

	if displaced != "" {
		a.notify(displaced)
		ev := queue.NewEvent(queue.EventMigrated)
		ev.Username = s.Username
		ev.TokenRef = queue.TokenRef(token)
		ev.DeviceID = deviceID
		ev.FromDevice = displaced
		a.publish(ctx, ev)
	}
	return VerifyResult{Username: s.Username, ExpiresAt: s.ExpiresAt}, nil
}
