// Package alarm implements the Alarm Engine: per-alarm periodic evaluation
// against the Search Service, throttled/grouped AlarmEvent creation, and
// retried notification dispatch.
package alarm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/resilience"
	"github.com/ozkanpakdil/grepwise-sub005/internal/search"
)

// Condition is the comparison applied to the matched record count.
type Condition string

const (
	CountGT  Condition = "count >"
	CountGTE Condition = "count >="
	CountLT  Condition = "count <"
	CountLTE Condition = "count <="
	CountEQ  Condition = "count =="
)

// NotificationChannel is one configured notification destination.
type NotificationChannel struct {
	Kind        string // "EMAIL", "WEBHOOK", "SLACK", ...
	Destination string
}

// Alarm is a user-defined alarm rule.
type Alarm struct {
	ID                        string
	Name                      string
	Query                     string
	Condition                 Condition
	Threshold                 int64
	TimeWindowMinutes         int64
	Enabled                   bool
	NotificationChannels      []NotificationChannel
	ThrottleWindowMinutes     int64
	MaxNotificationsPerWindow int
	GroupingKey               string // empty means no grouping
	GroupingWindowMinutes     int64
	EvalPeriodSeconds         int64 // default 60
}

// EventStatus is an AlarmEvent's lifecycle state.
type EventStatus string

const (
	StatusTriggered    EventStatus = "TRIGGERED"
	StatusAcknowledged EventStatus = "ACKNOWLEDGED"
	StatusResolved     EventStatus = "RESOLVED"
)

// Event is one alarm occurrence.
type Event struct {
	ID             string
	AlarmID        string
	AlarmName      string
	Timestamp      int64
	Status         EventStatus
	MatchCount     int64
	AcknowledgedBy string
	AcknowledgedAt int64
	ResolvedBy     string
	ResolvedAt     int64
	Details        map[string]string
}

// Notifier dispatches a fired event through one channel. Implementations
// live outside this package (email, webhook, Slack). With a nil Notifier or
// an alarm without channels, nothing is dispatched.
type Notifier interface {
	Notify(ctx context.Context, ch NotificationChannel, a Alarm, e Event) error
}

// groupState tracks the dispatched-notification timestamps for either a
// whole alarm (no grouping) or one grouping-key bucket.
type groupState struct {
	dispatches []int64 // epoch millis of each dispatched notification
	eventID    string  // current open event's id, for coalescing
	windowEnd  int64   // grouping window end, for coalescing new matches
}

// Engine evaluates alarms and manages their events.
type Engine struct {
	mu     sync.Mutex
	alarms map[string]Alarm
	events map[string]Event   // by event id
	groups map[string]*groupState // key: alarmID + "\x1f" + groupValue

	search   *search.Service
	notifier Notifier
	log      *logging.Logger
	metrics  *metrics.Metrics
}

func New(s *search.Service, n Notifier, log *logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		alarms:   make(map[string]Alarm),
		events:   make(map[string]Event),
		groups:   make(map[string]*groupState),
		search:   s,
		notifier: n,
		log:      log,
		metrics:  m,
	}
}

func (e *Engine) SetAlarm(a Alarm) {
	if a.EvalPeriodSeconds <= 0 {
		a.EvalPeriodSeconds = 60
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alarms[a.ID] = a
}

func (e *Engine) RemoveAlarm(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.alarms, id)
}

func (e *Engine) Alarm(id string) (Alarm, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.alarms[id]
	return a, ok
}

func (e *Engine) Alarms() []Alarm {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alarm, 0, len(e.alarms))
	for _, a := range e.alarms {
		out = append(out, a)
	}
	return out
}

func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev)
	}
	return out
}

func compare(cond Condition, count, threshold int64) bool {
	switch cond {
	case CountGT:
		return count > threshold
	case CountGTE:
		return count >= threshold
	case CountLT:
		return count < threshold
	case CountLTE:
		return count <= threshold
	case CountEQ:
		return count == threshold
	default:
		return false
	}
}

// isRegexQuery applies the spec's `regex:` prefix convention.
func isRegexQuery(q string) (string, bool) {
	if strings.HasPrefix(q, "regex:") {
		return strings.TrimPrefix(q, "regex:"), true
	}
	return q, false
}

// Evaluate performs steps 2-4 of the documented evaluation algorithm and
// reports whether the alarm would trigger, without persisting an event —
// the manual evaluate(alarmId) operation.
func (e *Engine) Evaluate(ctx context.Context, alarmID string, now int64) (bool, int64, error) {
	a, ok := e.Alarm(alarmID)
	if !ok {
		return false, 0, errors.NotFound("alarm", alarmID)
	}

	start := now - a.TimeWindowMinutes*60*1000
	q, isRegex := isRegexQuery(a.Query)
	records, err := e.search.Search(ctx, q, isRegex, start, now, true)
	if err != nil {
		return false, 0, err
	}

	count := int64(len(records))
	return compare(a.Condition, count, a.Threshold), count, nil
}

// Tick runs the full evaluation cycle for one alarm at time now: evaluate,
// and if triggered and not suppressed by throttling/grouping, create or
// coalesce an AlarmEvent and dispatch notifications.
func (e *Engine) Tick(ctx context.Context, alarmID string, now int64) (*Event, error) {
	a, ok := e.Alarm(alarmID)
	if !ok {
		return nil, errors.NotFound("alarm", alarmID)
	}
	if !a.Enabled {
		return nil, nil
	}

	start := now - a.TimeWindowMinutes*60*1000
	q, isRegex := isRegexQuery(a.Query)
	records, err := e.search.Search(ctx, q, isRegex, start, now, true)
	fired := err == nil && compare(a.Condition, int64(len(records)), a.Threshold)

	if e.metrics != nil {
		e.metrics.RecordAlarmEvaluation(a.ID, fired)
	}
	if e.log != nil {
		e.log.LogAlarmEvaluation(ctx, a.ID, len(records), fired, err)
	}
	if err != nil {
		return nil, err
	}
	if !fired {
		return nil, nil
	}

	groupValue := ""
	if a.GroupingKey != "" {
		groupValue = groupValueOf(records, a.GroupingKey)
	}
	groupKey := a.ID + "\x1f" + groupValue

	e.mu.Lock()
	gs, ok := e.groups[groupKey]
	if !ok {
		gs = &groupState{}
		e.groups[groupKey] = gs
	}

	coalesce := a.GroupingKey != "" && gs.eventID != "" && now <= gs.windowEnd
	allowed := e.allowNotificationLocked(gs, a, now)
	if !coalesce && !allowed {
		e.mu.Unlock()
		return nil, nil
	}

	var ev Event
	if coalesce {
		ev = e.events[gs.eventID]
		ev.MatchCount = int64(len(records))
		e.events[ev.ID] = ev
	} else {
		ev = Event{
			ID:         uuid.New().String(),
			AlarmID:    a.ID,
			AlarmName:  a.Name,
			Timestamp:  now,
			Status:     StatusTriggered,
			MatchCount: int64(len(records)),
			Details:    map[string]string{},
		}
		e.events[ev.ID] = ev
		gs.eventID = ev.ID
		gs.windowEnd = now + a.GroupingWindowMinutes*60*1000
	}
	e.mu.Unlock()

	if allowed {
		e.dispatch(ctx, a, ev)
	}
	return &ev, nil
}

// groupValueOf returns a single representative grouping-key value for a
// matched-record set: the key's value on the first record that carries it,
// or "" if none do. A tick's notification-coalescing decision is made
// against this one value rather than per-record, since step 4's trigger
// comparison already operates on the whole matched set as a unit.
func groupValueOf(records []record.Record, key string) string {
	for _, r := range records {
		if v, ok := r.Metadata[key]; ok {
			return v
		}
	}
	return ""
}

func (e *Engine) allowNotificationLocked(gs *groupState, a Alarm, now int64) bool {
	windowStart := now - a.ThrottleWindowMinutes*60*1000
	kept := gs.dispatches[:0]
	for _, ts := range gs.dispatches {
		if ts >= windowStart {
			kept = append(kept, ts)
		}
	}
	gs.dispatches = kept

	limit := a.MaxNotificationsPerWindow
	if limit <= 0 {
		limit = 1
	}
	if len(gs.dispatches) >= limit {
		return false
	}
	gs.dispatches = append(gs.dispatches, now)
	return true
}

func (e *Engine) dispatch(ctx context.Context, a Alarm, ev Event) {
	if e.notifier == nil || len(a.NotificationChannels) == 0 {
		return
	}
	cfg := resilience.NotificationRetryConfig()
	for _, ch := range a.NotificationChannels {
		ch := ch
		err := resilience.Retry(ctx, cfg, func() error {
			return e.notifier.Notify(ctx, ch, a, ev)
		})
		if err != nil {
			e.mu.Lock()
			stored := e.events[ev.ID]
			if stored.Details == nil {
				stored.Details = map[string]string{}
			}
			stored.Details["NOTIFY_FAILED"] = fmt.Sprintf("%s: %v", ch.Kind, err)
			e.events[ev.ID] = stored
			e.mu.Unlock()
		}
	}
}

// Acknowledge transitions TRIGGERED -> ACKNOWLEDGED.
func (e *Engine) Acknowledge(eventID, by string, now int64) (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[eventID]
	if !ok {
		return Event{}, errors.NotFound("alarmEvent", eventID)
	}
	if ev.Status != StatusTriggered {
		return Event{}, errors.InvalidInput("status", "can only acknowledge a TRIGGERED event")
	}
	ev.Status = StatusAcknowledged
	ev.AcknowledgedBy = by
	ev.AcknowledgedAt = now
	e.events[eventID] = ev
	return ev, nil
}

// Resolve transitions TRIGGERED or ACKNOWLEDGED -> RESOLVED.
func (e *Engine) Resolve(eventID, by string, now int64) (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[eventID]
	if !ok {
		return Event{}, errors.NotFound("alarmEvent", eventID)
	}
	if ev.Status == StatusResolved {
		return Event{}, errors.InvalidInput("status", "event already resolved")
	}
	ev.Status = StatusResolved
	ev.ResolvedBy = by
	ev.ResolvedAt = now
	e.events[eventID] = ev
	return ev, nil
}

// TickPeriod returns the scheduler wake interval for an alarm, min(evalPeriod, 30s).
func TickPeriod(a Alarm) time.Duration {
	period := time.Duration(a.EvalPeriodSeconds) * time.Second
	const maxPeriod = 30 * time.Second
	if period > maxPeriod {
		return maxPeriod
	}
	return period
}
