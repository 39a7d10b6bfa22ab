package workflow

import (
	"context"
	"sync"

	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/audit"
)

var (
	_ engine    = &engineMock{}
	_ auditSink = &auditSinkMock{}
)

type engineMock struct {
	StartFunc func(ctx context.Context, wf *domain.WorkflowInstance) (string, error)

	calls struct {
		Start []struct {
			Ctx context.Context
			Wf  *domain.WorkflowInstance
		}
	}
	lockStart sync.RWMutex
}

func (mock *engineMock) Start(ctx context.Context, wf *domain.WorkflowInstance) (string, error) {
	if mock.StartFunc == nil {
		panic("engineMock.StartFunc: method is nil but engine.Start was just called")
	}
	callInfo := struct {
		Ctx context.Context
		Wf  *domain.WorkflowInstance
	}{Ctx: ctx, Wf: wf}
	mock.lockStart.Lock()
	mock.calls.Start = append(mock.calls.Start, callInfo)
	mock.lockStart.Unlock()
	return mock.StartFunc(ctx, wf)
}

func (mock *engineMock) StartCalls() []struct {
	Ctx context.Context
	Wf  *domain.WorkflowInstance
} {
	mock.lockStart.RLock()
	calls := mock.calls.Start
	mock.lockStart.RUnlock()
	return calls
}

type auditSinkMock struct {
	ReserveFunc func() (audit.Reservation, error)

	calls struct {
		Reserve []struct{}
	}
	lockReserve sync.RWMutex
}

func (mock *auditSinkMock) Reserve() (audit.Reservation, error) {
	if mock.ReserveFunc == nil {
		panic("auditSinkMock.ReserveFunc: method is nil but auditSink.Reserve was just called")
	}
	mock.lockReserve.Lock()
	mock.calls.Reserve = append(mock.calls.Reserve, struct{}{})
	mock.lockReserve.Unlock()
	return mock.ReserveFunc()
}

func (mock *auditSinkMock) ReserveCalls() []struct{} {
	mock.lockReserve.RLock()
	calls := mock.calls.Reserve
	mock.lockReserve.RUnlock()
	return calls
}

// auditLog hands out reservations and keeps what they commit.
type auditLog struct {
	mu        sync.Mutex
	committed []domain.AuditEntry
	open      int
}

func (l *auditLog) sink() *auditSinkMock {
	return &auditSinkMock{ReserveFunc: func() (audit.Reservation, error) {
		l.mu.Lock()
		l.open++
		l.mu.Unlock()
		return &logReservation{log: l}, nil
	}}
}

func (l *auditLog) entries() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AuditEntry(nil), l.committed...)
}

func (l *auditLog) outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

type logReservation struct {
	log  *auditLog
	done bool
}

func (r *logReservation) Commit(_ context.Context, entry domain.AuditEntry) domain.AuditEntry {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	if !r.done {
		r.done = true
		r.log.open--
		r.log.committed = append(r.log.committed, entry)
	}
	return entry
}

func (r *logReservation) Release() {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	if !r.done {
		r.done = true
		r.log.open--
	}
}
