// Package threadstore persists which agent thread backs each local
// conversation, so a conversation resumes its thread across restarts.
package threadstore

import (
	"errors"
	"time"

	"github.com/Gurpartap/carecompanion/session"
)

var (
	ErrKeyRequired      = errors.New("conversation key is required")
	ErrThreadIDRequired = errors.New("thread id is required")
)

// Record maps a conversation key to its thread.
type Record struct {
	Key       string
	ThreadID  session.ThreadID
	UpdatedAt time.Time
}
