package store

import (
	"context"
	"errors"
)

// Keys persisted on the device key-value store.
const (
	KeyCurrentStudy         = "current-study"
	KeyStudyTasks           = "study-tasks"
	KeyUUID                 = "uuid"
	KeyUUIDSet              = "uuid-set"
	KeyNotificationsEnabled = "notifications-enabled"
	KeyEnrolmentDate        = "enrolment-date"
	KeyCondition            = "condition"
	KeyPendingData          = "pending-data"
	KeyPendingLog           = "pending-log"
)

var ErrEncode = errors.New("store: value could not be encoded")

// Store is a JSON-valued key-value store. Get reports false when the key is
// absent and leaves dst untouched.
type Store interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
}
