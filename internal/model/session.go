package model

import "time"

// Session models an entry in the `sessions` table: one row per
// issued token. The row, not the signed token, is authoritative for
// the current device binding, expiry and validity. The claims baked
// into the token at mint time never change; only DeviceID, ExpiresAt
// and Valid may be rewritten to reflect migration, extension or
// revocation.
//
// Fields:
//  Token     – the signed credential, primary key.
//  UserID    – owning user.
//  Username  – joined from users for read paths; not a column.
//  DeviceID  – device currently bound to the token. Nil until a
//              device registers when issuance and binding are split.
//  ExpiresAt – absolute expiry; after this instant the session is
//              dead regardless of Valid.
//  Valid     – false means revoked, administratively or by the lazy
//              expiry transition, even if ExpiresAt is in the future.
//  Migrated  – set once the row has been rebound away from its
//              mint-time device. A token migrates at most once;
//              afterwards a mismatched device is rejected instead of
//              displacing the current holder again.
//  CreatedAt – timestamp of issuance.
//  UpdatedAt – timestamp of last rewrite.
type Session struct {
	Token     string     // sessions.token
	UserID    uint64     // sessions.user_id
	Username  string     // users.username (join)
	DeviceID  *string    // sessions.device_id (nullable)
	ExpiresAt time.Time  // sessions.expires_at
	Valid     bool       // sessions.valid
	Migrated  bool       // sessions.migrated
	CreatedAt time.Time  // sessions.created_at
	UpdatedAt time.Time  // sessions.updated_at
}

// Active reports whether the session passes the two liveness checks
// at the given instant. It does not consider device binding.
func (s Session) Active(now time.Time) bool {
	return s.Valid && s.ExpiresAt.After(now)
}
