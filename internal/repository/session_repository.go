package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/session-authority/internal/model"
)

// SessionRepo persists session rows, one per issued token. Every
// read-modify-write runs as a single transaction with the row locked
// via SELECT ... FOR UPDATE so that two concurrent verifications of
// the same token cannot both observe the old device binding and both
// win a migration.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

const sessionCols = `s.token, s.user_id, u.username, s.device_id, s.expires_at, s.valid, s.migrated, s.created_at, s.updated_at`

func scanSession(row *sql.Row) (model.Session, error) {
	var (
		s      model.Session
		device sql.NullString
	)
	err := row.Scan(&s.Token, &s.UserID, &s.Username, &device,
		&s.ExpiresAt, &s.Valid, &s.Migrated, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	if device.Valid {
		d := device.String
		s.DeviceID = &d
	}
	return s, nil
}

// CreateDisplacing inserts a session row and, in the same
// transaction, invalidates every still-active session of the same
// user bound to a different device. The displaced device ids are
// returned so the caller can push forced-logout signals; the slice is
// empty when the user had no competing bindings.
func (r *SessionRepo) CreateDisplacing(ctx context.Context, s *model.Session) ([]string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	displaced, err := displacedDevicesTx(ctx, tx, s.UserID, s.DeviceID)
	if err != nil {
		return nil, err
	}
	if len(displaced) > 0 {
		if err := invalidateOthersTx(ctx, tx, s.UserID, s.DeviceID); err != nil {
			return nil, err
		}
	}

	var device interface{}
	if s.DeviceID != nil {
		device = *s.DeviceID
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, device_id, expires_at, valid) VALUES (?,?,?,?,1)",
		s.Token, s.UserID, device, s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return displaced, nil
}

// displacedDevicesTx lists device ids holding an active session for
// the user other than the one being bound. Rows are locked so the
// subsequent invalidation cannot race a concurrent verify.
func displacedDevicesTx(ctx context.Context, tx *sql.Tx, userID uint64, device *string) ([]string, error) {
	q := `SELECT DISTINCT device_id FROM sessions
	      WHERE user_id=? AND valid=1 AND expires_at>UTC_TIMESTAMP() AND device_id IS NOT NULL`
	args := []interface{}{userID}
	if device != nil {
		q += " AND device_id<>?"
		args = append(args, *device)
	}
	rows, err := tx.QueryContext(ctx, q+" FOR UPDATE", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func invalidateOthersTx(ctx context.Context, tx *sql.Tx, userID uint64, device *string) error {
	q := "UPDATE sessions SET valid=0 WHERE user_id=? AND valid=1 AND device_id IS NOT NULL"
	args := []interface{}{userID}
	if device != nil {
		q += " AND device_id<>?"
		args = append(args, *device)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// Mutate runs fn against the session row locked FOR UPDATE. When fn
// reports commit=true the mutated DeviceID/ExpiresAt/Valid fields are
// written back before the transaction commits; the write happens even
// when fn also returns an error, which is how the lazy expiry
// transition persists valid=0 while still failing the caller. When
// commit=false the transaction rolls back and the row is untouched.
func (r *SessionRepo) Mutate(ctx context.Context, token string, fn func(*model.Session) (bool, error)) (model.Session, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+sessionCols+" FROM sessions s JOIN users u ON u.id=s.user_id WHERE s.token=? LIMIT 1 FOR UPDATE",
		token)
	s, err := scanSession(row)
	if err != nil {
		return model.Session{}, err
	}

	commit, fnErr := fn(&s)
	if !commit {
		return s, fnErr
	}
	var device interface{}
	if s.DeviceID != nil {
		device = *s.DeviceID
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET device_id=?, expires_at=?, valid=?, migrated=? WHERE token=?",
		device, s.ExpiresAt, s.Valid, s.Migrated, token); err != nil {
		return model.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Session{}, err
	}
	return s, fnErr
}

// Delete hard-deletes a session row and returns it as it stood. The
// removal is irreversible: absence and never-existed are the same
// thing afterwards.
func (r *SessionRepo) Delete(ctx context.Context, token string) (model.Session, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+sessionCols+" FROM sessions s JOIN users u ON u.id=s.user_id WHERE s.token=? LIMIT 1 FOR UPDATE",
		token)
	s, err := scanSession(row)
	if err != nil {
		return model.Session{}, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE token=?", token); err != nil {
		return model.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Session{}, err
	}
	return s, nil
}

// InvalidateAllForUser soft-revokes every still-valid session owned
// by the user. Rows are kept for audit history. It returns the number
// of sessions revoked plus the device ids that held an unexpired
// binding, so each can be pushed a forced-logout signal.
func (r *SessionRepo) InvalidateAllForUser(ctx context.Context, userID uint64) (int64, []string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	displaced, err := displacedDevicesTx(ctx, tx, userID, nil)
	if err != nil {
		return 0, nil, err
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET valid=0 WHERE user_id=? AND valid=1", userID)
	if err != nil {
		return 0, nil, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	return count, displaced, nil
}

// PurgeExpiredBefore removes rows whose expiry transitioned long ago.
// Expiry handling itself is lazy (the verifier flips valid=0 on
// read); this is housekeeping so the table does not grow unbounded.
func (r *SessionRepo) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE valid=0 AND expires_at<?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
