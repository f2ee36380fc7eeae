// internal/types/ids.go
package types

import "github.com/google/uuid"

type UserID string
type JobID string

func NewJobID() JobID {
	return JobID(uuid.New().String())
}
