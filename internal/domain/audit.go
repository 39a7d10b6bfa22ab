package domain

import "time"

// ActorSystem is recorded as the actor of entries produced by the pipeline
// itself rather than by a user.
const ActorSystem = "system"

// AuditEntry is an immutable record of one state-changing event.
// ID is a ULID, so entries sort by creation order within a process.
type AuditEntry struct {
	ID           string
	Actor        string
	Action       AuditAction
	ResourceType ResourceType
	ResourceID   string
	Details      map[string]any
	Origin       string
	UserAgent    string
	OccurredAt   time.Time
}

// AuditFilter selects audit entries. Zero values mean "any".
type AuditFilter struct {
	Actor        string
	Action       AuditAction
	ResourceType ResourceType
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// AuditSummary aggregates audit activity in [From, To).
type AuditSummary struct {
	From       time.Time
	To         time.Time
	Total      int
	ByAction   map[string]int
	ByActor    map[string]int
	ByResource map[string]int
	// Timeline holds one point per UTC day, oldest first.
	Timeline  []AuditDayCount
	TopActors []AuditActorCount
}

// AuditDayCount is the number of entries recorded on one UTC day.
type AuditDayCount struct {
	Day   time.Time
	Count int
}

// AuditActorCount is the number of entries recorded by one actor.
type AuditActorCount struct {
	Actor string
	Count int
}
