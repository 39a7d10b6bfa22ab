package audit

import (
	"context"
	"sync"
	"time"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

var _ auditRepo = &auditRepoMock{}

type auditRepoMock struct {
	AppendFunc  func(ctx context.Context, entries []domain.AuditEntry) error
	QueryFunc   func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int, error)
	SummaryFunc func(ctx context.Context, from time.Time, to time.Time) (domain.AuditSummary, error)

	calls struct {
		Append []struct {
			Ctx     context.Context
			Entries []domain.AuditEntry
		}
		Query []struct {
			Ctx    context.Context
			Filter domain.AuditFilter
		}
		Summary []struct {
			Ctx  context.Context
			From time.Time
			To   time.Time
		}
	}
	lockAppend  sync.RWMutex
	lockQuery   sync.RWMutex
	lockSummary sync.RWMutex
}

func (mock *auditRepoMock) Append(ctx context.Context, entries []domain.AuditEntry) error {
	if mock.AppendFunc == nil {
		panic("auditRepoMock.AppendFunc: method is nil but auditRepo.Append was just called")
	}
	callInfo := struct {
		Ctx     context.Context
		Entries []domain.AuditEntry
	}{Ctx: ctx, Entries: entries}
	mock.lockAppend.Lock()
	mock.calls.Append = append(mock.calls.Append, callInfo)
	mock.lockAppend.Unlock()
	return mock.AppendFunc(ctx, entries)
}

func (mock *auditRepoMock) AppendCalls() []struct {
	Ctx     context.Context
	Entries []domain.AuditEntry
} {
	mock.lockAppend.RLock()
	calls := mock.calls.Append
	mock.lockAppend.RUnlock()
	return calls
}

func (mock *auditRepoMock) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	if mock.QueryFunc == nil {
		panic("auditRepoMock.QueryFunc: method is nil but auditRepo.Query was just called")
	}
	callInfo := struct {
		Ctx    context.Context
		Filter domain.AuditFilter
	}{Ctx: ctx, Filter: filter}
	mock.lockQuery.Lock()
	mock.calls.Query = append(mock.calls.Query, callInfo)
	mock.lockQuery.Unlock()
	return mock.QueryFunc(ctx, filter)
}

func (mock *auditRepoMock) QueryCalls() []struct {
	Ctx    context.Context
	Filter domain.AuditFilter
} {
	mock.lockQuery.RLock()
	calls := mock.calls.Query
	mock.lockQuery.RUnlock()
	return calls
}

func (mock *auditRepoMock) Summary(ctx context.Context, from time.Time, to time.Time) (domain.AuditSummary, error) {
	if mock.SummaryFunc == nil {
		panic("auditRepoMock.SummaryFunc: method is nil but auditRepo.Summary was just called")
	}
	callInfo := struct {
		Ctx  context.Context
		From time.Time
		To   time.Time
	}{Ctx: ctx, From: from, To: to}
	mock.lockSummary.Lock()
	mock.calls.Summary = append(mock.calls.Summary, callInfo)
	mock.lockSummary.Unlock()
	return mock.SummaryFunc(ctx, from, to)
}

func (mock *auditRepoMock) SummaryCalls() []struct {
	Ctx  context.Context
	From time.Time
	To   time.Time
} {
	mock.lockSummary.RLock()
	calls := mock.calls.Summary
	mock.lockSummary.RUnlock()
	return calls
}
