// Package session holds the credential pair and the current user between
// process runs. Storage is pluggable through Store.
package session

import (
	"context"
)

// Keys under which the session is persisted.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// Keys lists every key a session writes.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// Store is a string key/value store. Concurrent writers are allowed and the
// last writer wins.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	Set(ctx context.Context, key, value string) error

	// Clear removes the given keys. Missing keys are not an error.
	Clear(ctx context.Context, keys ...string) error
}

const (
	RoleSuperuser  = "superuser"
	RoleFleetOwner = "fleet_owner"
	RoleSales      = "sales"
	RoleService    = "service"
)

// User is the current-user record returned by the backend on login.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleSuperuser
}
