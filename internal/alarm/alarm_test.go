package alarm

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/cache"
	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/redaction"
	"github.com/ozkanpakdil/grepwise-sub005/internal/search"
)

func ptr(v int64) *int64 { return &v }

func newTestSearch(t *testing.T, recs []record.Record) *search.Service {
	idx, err := index.Open(index.Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	require.NoError(t, idx.Commit(context.Background(), recs))

	c := cache.New(cache.Config{Enabled: false})
	t.Cleanup(func() { c.Close() })

	r := redaction.New(redaction.Config{Enabled: false})
	return search.New(idx, c, r, nil, nil)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Notify(ctx context.Context, ch NotificationChannel, a Alarm, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

func TestEvaluate_TriggersWhenCountExceedsThreshold(t *testing.T) {
	recs := make([]record.Record, 12)
	for i := range recs {
		recs[i] = record.Record{ID: record.NewID(), IngestTime: int64(i * 1000), RecordTime: ptr(int64(i * 1000)), Message: "boom ERROR"}
	}
	svc := newTestSearch(t, recs)

	e := New(svc, nil, nil, nil)
	e.SetAlarm(Alarm{
		ID: "a1", Name: "too many errors", Query: "boom", Condition: CountGT, Threshold: 5,
		TimeWindowMinutes: 15, Enabled: true, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
	})

	fired, count, err := e.Evaluate(context.Background(), "a1", 20000)
	require.NoError(t, err)
	require.True(t, fired)
	require.Equal(t, int64(12), count)
}

func TestEvaluate_DoesNotPersistEvent(t *testing.T) {
	recs := []record.Record{{ID: "1", IngestTime: 100, RecordTime: ptr(int64(100)), Message: "boom"}}
	svc := newTestSearch(t, recs)

	e := New(svc, nil, nil, nil)
	e.SetAlarm(Alarm{ID: "a1", Query: "boom", Condition: CountGT, Threshold: 0, TimeWindowMinutes: 15, Enabled: true})

	_, _, err := e.Evaluate(context.Background(), "a1", 10000)
	require.NoError(t, err)
	require.Empty(t, e.Events())
}

func TestTick_FiresAndDispatchesNotification(t *testing.T) {
	recs := make([]record.Record, 12)
	for i := range recs {
		recs[i] = record.Record{ID: record.NewID(), IngestTime: int64(i * 1000), RecordTime: ptr(int64(i * 1000)), Message: "boom"}
	}
	svc := newTestSearch(t, recs)
	notifier := &countingNotifier{}

	e := New(svc, notifier, nil, nil)
	e.SetAlarm(Alarm{
		ID: "a1", Name: "too many errors", Query: "boom", Condition: CountGT, Threshold: 5,
		TimeWindowMinutes: 15, Enabled: true, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
		NotificationChannels: []NotificationChannel{{Kind: "EMAIL", Destination: "ops@example.com"}},
	})

	ev, err := e.Tick(context.Background(), "a1", 20000)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, StatusTriggered, ev.Status)
	require.Equal(t, int64(12), ev.MatchCount)
	require.Equal(t, 1, notifier.calls)
}

func TestTick_ThrottlesWithinWindow(t *testing.T) {
	recs := make([]record.Record, 12)
	for i := range recs {
		recs[i] = record.Record{ID: record.NewID(), IngestTime: int64(i * 1000), RecordTime: ptr(int64(i * 1000)), Message: "boom"}
	}
	svc := newTestSearch(t, recs)
	notifier := &countingNotifier{}

	e := New(svc, notifier, nil, nil)
	e.SetAlarm(Alarm{
		ID: "a1", Query: "boom", Condition: CountGT, Threshold: 5,
		TimeWindowMinutes: 15, Enabled: true, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
		NotificationChannels: []NotificationChannel{{Kind: "EMAIL", Destination: "ops@example.com"}},
	})

	_, err := e.Tick(context.Background(), "a1", 20000)
	require.NoError(t, err)
	_, err = e.Tick(context.Background(), "a1", 25000)
	require.NoError(t, err)

	require.Equal(t, 1, notifier.calls)
}

func TestAcknowledgeThenResolve_TransitionsLifecycle(t *testing.T) {
	recs := make([]record.Record, 12)
	for i := range recs {
		recs[i] = record.Record{ID: record.NewID(), IngestTime: int64(i * 1000), RecordTime: ptr(int64(i * 1000)), Message: "boom"}
	}
	svc := newTestSearch(t, recs)

	e := New(svc, nil, nil, nil)
	e.SetAlarm(Alarm{
		ID: "a1", Query: "boom", Condition: CountGT, Threshold: 5,
		TimeWindowMinutes: 15, Enabled: true, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
	})

	ev, err := e.Tick(context.Background(), "a1", 20000)
	require.NoError(t, err)

	acked, err := e.Acknowledge(ev.ID, "alice", 21000)
	require.NoError(t, err)
	require.Equal(t, StatusAcknowledged, acked.Status)

	resolved, err := e.Resolve(ev.ID, "alice", 22000)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, resolved.Status)
}

func TestResolve_DirectFromTriggered(t *testing.T) {
	recs := []record.Record{{ID: "1", IngestTime: 100, RecordTime: ptr(int64(100)), Message: "boom"}}
	svc := newTestSearch(t, recs)

	e := New(svc, nil, nil, nil)
	e.SetAlarm(Alarm{ID: "a1", Query: "boom", Condition: CountGT, Threshold: 0, TimeWindowMinutes: 15, Enabled: true, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1})

	ev, err := e.Tick(context.Background(), "a1", 1000)
	require.NoError(t, err)

	resolved, err := e.Resolve(ev.ID, "bob", 2000)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, resolved.Status)
}
