// internal/types/errors.go
package types

import "errors"

// ErrUserNotFound means the registry or scheduler has no record for the ID.
var ErrUserNotFound = errors.New("user not found")
