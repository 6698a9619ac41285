// Package eventlog implements the append-only store of karma events.
//
// The log is the sole source of truth: CVM and identity records are
// derived projections that can be rebuilt from it at any time. Append is
// the only mutation; concurrent appends touching the same subject are
// serialized through striped locks while appends to different subjects
// proceed concurrently.
package eventlog

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cvmap/cvmap/internal/domain/model"
	"github.com/cvmap/cvmap/pkg/metrics"
)

// Default log configuration constants.
const (
	defaultStripeCount = 64
)

// SubjectType distinguishes the two projection families.
type SubjectType string

// Subject types.
const (
	SubjectCvm      SubjectType = "cvm"
	SubjectIdentity SubjectType = "identity"
)

// Subject names a projection affected by an append.
type Subject struct {
	Type SubjectType
	ID   string
}

// CvmRecord is the log's creation fact for a CVM. Owner is the identity
// whose report introduced it; received events are attributed to the owner.
type CvmRecord struct {
	ID        string
	Latitude  float64
	Longitude float64
	Owner     string
	CreatedAt time.Time
}

// IdentityRecord is the log's creation fact for an identity.
type IdentityRecord struct {
	Identity    string
	DisplayName string
	CreatedAt   time.Time
}

// Log is an in-memory append-only event log with subject indexes.
type Log struct {
	mu         sync.RWMutex
	events     []model.Event
	byIdentity map[string][]int
	byCvm      map[string][]int
	identities map[string]IdentityRecord
	cvms       map[string]CvmRecord
	seq        uint64

	stripes []sync.Mutex

	// onAppend, when set, is invoked after a successful append once per
	// affected subject, outside the stripe locks.
	onAppend func(Subject)
}

// New creates an empty log with configuration options.
func New(opts ...Option) *Log {
	l := &Log{
		byIdentity: make(map[string][]int),
		byCvm:      make(map[string][]int),
		identities: make(map[string]IdentityRecord),
		cvms:       make(map[string]CvmRecord),
		stripes:    make([]sync.Mutex, defaultStripeCount),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Append validates and stores an event, assigning its ID and sequence
// number. Registration events create the identity; a report_received event
// flagged as creating introduces the CVM. Returns the stored event.
func (l *Log) Append(ctx context.Context, e model.Event) (model.Event, error) {
	if !e.Kind.Valid() {
		return model.Event{}, ErrInvalidEventKind
	}
	if e.Kind.IsReport() && !e.Reason.Valid() {
		return model.Event{}, ErrMissingReason
	}
	if e.Identity == "" {
		return model.Event{}, ErrUnknownSubject
	}
	if e.Kind.RequiresCvm() && e.CvmID == "" {
		return model.Event{}, ErrUnknownSubject
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	// Serialize the existence check and append per subject. Stripes are
	// acquired in index order to avoid lock inversion.
	l.lockSubjects(e)
	stored, err := l.append(e)
	l.unlockSubjects(e)
	if err != nil {
		return model.Event{}, err
	}

	metrics.RecordEventAppended(string(stored.Kind))

	// The hook runs after the stripes are released so it may re-enter
	// the log.
	if l.onAppend != nil {
		l.onAppend(Subject{Type: SubjectIdentity, ID: stored.Identity})
		if stored.CvmID != "" {
			l.onAppend(Subject{Type: SubjectCvm, ID: stored.CvmID})
		}
	}
	return stored, nil
}

// append stores a validated event. Callers hold the subject stripes.
func (l *Log) append(e model.Event) (model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Kind == model.KindRegistration {
		if _, ok := l.identities[e.Identity]; ok {
			return model.Event{}, ErrAlreadyRegistered
		}
		l.identities[e.Identity] = IdentityRecord{
			Identity:  e.Identity,
			CreatedAt: e.OccurredAt,
		}
	} else if _, ok := l.identities[e.Identity]; !ok {
		return model.Event{}, ErrUnknownSubject
	}

	if e.Kind.RequiresCvm() {
		if _, ok := l.cvms[e.CvmID]; !ok {
			// Only a creating report may introduce a new CVM; every
			// other kind must target an existing one.
			if !e.IsCreation() {
				return model.Event{}, ErrUnknownSubject
			}
			l.cvms[e.CvmID] = CvmRecord{
				ID:        e.CvmID,
				Latitude:  e.Latitude,
				Longitude: e.Longitude,
				Owner:     e.Identity,
				CreatedAt: e.OccurredAt,
			}
		}
	}

	l.seq++
	e.Seq = l.seq
	idx := len(l.events)
	l.events = append(l.events, e)
	l.byIdentity[e.Identity] = append(l.byIdentity[e.Identity], idx)
	if e.CvmID != "" {
		l.byCvm[e.CvmID] = append(l.byCvm[e.CvmID], idx)
	}
	return e, nil
}

// SetDisplayName records or updates the display name for an identity.
// Display names are presentation metadata, not causal history, so they
// live on the creation record rather than in the event stream.
func (l *Log) SetDisplayName(ctx context.Context, identity, displayName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.identities[identity]
	if !ok {
		return ErrUnknownSubject
	}
	rec.DisplayName = displayName
	l.identities[identity] = rec
	return nil
}

// ByIdentity returns the identity's events inside [from, to], ordered by
// OccurredAt ascending with ties broken by insertion order. A zero bound
// is open. Each call re-reads the log, so the sequence is restartable.
func (l *Log) ByIdentity(ctx context.Context, identity string, from, to time.Time) ([]model.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.identities[identity]; !ok {
		return nil, ErrUnknownSubject
	}
	return l.collect(l.byIdentity[identity], from, to), nil
}

// ByCvm returns the CVM's events inside [from, to], same ordering and
// restartability as ByIdentity.
func (l *Log) ByCvm(ctx context.Context, cvmID string, from, to time.Time) ([]model.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.cvms[cvmID]; !ok {
		return nil, ErrUnknownSubject
	}
	return l.collect(l.byCvm[cvmID], from, to), nil
}

// collect copies and orders the indexed events. Must be called with at
// least a read lock held.
func (l *Log) collect(indexes []int, from, to time.Time) []model.Event {
	out := make([]model.Event, 0, len(indexes))
	for _, idx := range indexes {
		e := l.events[idx]
		if !from.IsZero() && e.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.OccurredAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Identity returns the creation record for an identity.
func (l *Log) Identity(ctx context.Context, identity string) (IdentityRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.identities[identity]
	return rec, ok
}

// Cvm returns the creation record for a CVM.
func (l *Log) Cvm(ctx context.Context, cvmID string) (CvmRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.cvms[cvmID]
	return rec, ok
}

// Identities returns all identity creation records.
func (l *Log) Identities(ctx context.Context) []IdentityRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]IdentityRecord, 0, len(l.identities))
	for _, rec := range l.identities {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Cvms returns all CVM creation records.
func (l *Log) Cvms(ctx context.Context) []CvmRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CvmRecord, 0, len(l.cvms))
	for _, rec := range l.cvms {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of registered identities and known CVMs.
func (l *Log) Counts(ctx context.Context) (identities, cvms int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.identities), len(l.cvms)
}

// Len returns the total number of appended events.
func (l *Log) Len(ctx context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *Log) stripeFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % len(l.stripes)
}

func (l *Log) lockSubjects(e model.Event) {
	a := l.stripeFor("identity|" + e.Identity)
	b := -1
	if e.CvmID != "" {
		b = l.stripeFor("cvm|" + e.CvmID)
	}
	if b == -1 || a == b {
		l.stripes[a].Lock()
		return
	}
	if a < b {
		l.stripes[a].Lock()
		l.stripes[b].Lock()
		return
	}
	l.stripes[b].Lock()
	l.stripes[a].Lock()
}

func (l *Log) unlockSubjects(e model.Event) {
	a := l.stripeFor("identity|" + e.Identity)
	b := -1
	if e.CvmID != "" {
		b = l.stripeFor("cvm|" + e.CvmID)
	}
	if b != -1 && b != a {
		l.stripes[b].Unlock()
	}
	l.stripes[a].Unlock()
}
