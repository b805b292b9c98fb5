package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type OpKind string

const (
	OpTransfer       OpKind = "Transfer"
	OpBuy            OpKind = "Buy"
	OpMint           OpKind = "Mint"
	OpSetPrice       OpKind = "SetPrice"
	OpWithdraw       OpKind = "Withdraw"
	OpImportToken    OpKind = "ImportToken"
	OpRefreshBalance OpKind = "RefreshBalance"
)

type OpStatus string

const (
	StatusRunning   OpStatus = "Running"
	StatusSucceeded OpStatus = "Succeeded"
	StatusFailed    OpStatus = "Failed"
)

type PendingOperation struct {
	ID            uuid.UUID
	Kind          OpKind
	Status        OpStatus
	ResultMessage string
	StartedAt     time.Time
}

// PendingTracker holds the single current operation banner. Begin replaces
// whatever is there; a finished banner clears itself after the timeout.
type PendingTracker struct {
	clock   clockwork.Clock
	timeout time.Duration

	mu      sync.Mutex
	current *PendingOperation
	clear   clockwork.Timer
}

func NewPendingTracker(clock clockwork.Clock, bannerTimeout time.Duration) *PendingTracker {
	return &PendingTracker{clock: clock, timeout: bannerTimeout}
}

func (t *PendingTracker) Begin(kind OpKind) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopClearLocked()
	op := &PendingOperation{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    StatusRunning,
		StartedAt: t.clock.Now(),
	}
	t.current = op
	return op.ID
}

// Finish records the outcome of id. It is a no-op when id was replaced or
// abandoned in the meantime.
func (t *PendingTracker) Finish(id uuid.UUID, status OpStatus, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || t.current.ID != id {
		return
	}
	t.current.Status = status
	t.current.ResultMessage = message

	t.stopClearLocked()
	if t.timeout > 0 {
		t.clear = t.clock.AfterFunc(t.timeout, func() { t.clearIf(id) })
	}
}

// Abandon drops a running operation from the banner. The underlying
// request keeps going; its result will be ignored by the tracker.
func (t *PendingTracker) Abandon(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || t.current.ID != id || t.current.Status != StatusRunning {
		return false
	}
	t.current = nil
	return true
}

// Current returns a copy of the banner operation.
func (t *PendingTracker) Current() (PendingOperation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return PendingOperation{}, false
	}
	return *t.current, true
}

func (t *PendingTracker) clearIf(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.ID == id && t.current.Status != StatusRunning {
		t.current = nil
	}
}

func (t *PendingTracker) stopClearLocked() {
	if t.clear != nil {
		t.clear.Stop()
		t.clear = nil
	}
}
