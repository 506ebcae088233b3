package model

import "time"

// User represents a row in the `users` table. Users are created
// lazily: the first time a token is issued for an unseen username a
// row is inserted, and rows are never deleted by the authority.
//
// Fields:
//  ID        – primary key identifier of the user.
//  Username  – unique identity key supplied by the caller.
//  CreatedAt – timestamp of first observation.
type User struct {
	ID        uint64    // users.id
	Username  string    // users.username
	CreatedAt time.Time // users.created_at
}
