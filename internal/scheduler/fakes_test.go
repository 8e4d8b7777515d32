package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/saviobatista/seatime-logger/internal/ais"
	"github.com/saviobatista/seatime-logger/internal/types"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func floatp(v float64) *float64 { return &v }

func position(lat, lon, speed float64) *types.VesselPosition {
	return &types.VesselPosition{
		MMSI:            "235012345",
		Latitude:        floatp(lat),
		Longitude:       floatp(lon),
		SpeedKnots:      floatp(speed),
		IsMoving:        speed > 2.0,
		TimestampSource: types.TimestampReceived,
	}
}

// fakeFetcher returns a scripted position or error per MMSI
type fakeFetcher struct {
	mu        sync.Mutex
	positions map[string]*types.VesselPosition
	errs      map[string]error
	panicOn   string
	calls     int
}

func (f *fakeFetcher) FetchPosition(_ context.Context, mmsi string) (*types.VesselPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if mmsi == f.panicOn {
		panic("provider exploded")
	}
	if err := f.errs[mmsi]; err != nil {
		return nil, err
	}
	pos, ok := f.positions[mmsi]
	if !ok {
		return nil, &ais.ProviderError{Kind: ais.KindNotFound, StatusCode: 404, MMSI: mmsi}
	}
	cp := *pos
	return &cp, nil
}

// memStore implements the check store and both sea-time entry stores
type memStore struct {
	mu       sync.Mutex
	checks   []types.PositionCheck
	entries  []types.SeaTimeEntry
	storeErr error
}

func (m *memStore) StorePositionCheck(_ context.Context, check *types.PositionCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.checks = append(m.checks, *check)
	return nil
}

func (m *memStore) GetPositionChecksSince(_ context.Context, vesselID string, since time.Time) ([]types.PositionCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.PositionCheck
	for _, c := range m.checks {
		if c.VesselID == vesselID && !c.CheckTime.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) GetEntriesForUser(_ context.Context, userID string) ([]types.SeaTimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SeaTimeEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) CreateSeaTimeEntry(_ context.Context, entry *types.SeaTimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memStore) GetOpenSeaTimeEntry(_ context.Context, vesselID string) (*types.SeaTimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].VesselID == vesselID && m.entries[i].IsOpen() {
			e := m.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (m *memStore) CloseSeaTimeEntry(_ context.Context, entry *types.SeaTimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == entry.ID && m.entries[i].IsOpen() {
			m.entries[i] = *entry
			return nil
		}
	}
	return errors.New("entry is not open")
}

func (m *memStore) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memStore) addCheck(vesselID string, at time.Time, lat, lon float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, types.PositionCheck{
		ID:        "seed",
		VesselID:  vesselID,
		CheckTime: at,
		Latitude:  floatp(lat),
		Longitude: floatp(lon),
		Source:    types.CheckSourceScheduled,
	})
}

// fakeTasks is an in-memory task registry
type fakeTasks struct {
	mu      sync.Mutex
	tasks   map[string]*types.TrackingTask
	dueErr  error
	dueCall int
}

func newFakeTasks(tasks ...*types.TrackingTask) *fakeTasks {
	f := &fakeTasks{tasks: make(map[string]*types.TrackingTask)}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTasks) DueTasks(_ context.Context, now time.Time) ([]*types.TrackingTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueCall++
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	var due []*types.TrackingTask
	for _, t := range f.tasks {
		if t.IsDue(now) {
			cp := *t
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(due[j].NextRun) })
	return due, nil
}

func (f *fakeTasks) MarkRun(_ context.Context, taskID string, lastRun, nextRun time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return errors.New("task not found")
	}
	last := lastRun
	t.LastRun = &last
	t.NextRun = nextRun
	return nil
}

func (f *fakeTasks) get(id string) types.TrackingTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tasks[id]
}

// fakeVessels is an in-memory vessel lookup
type fakeVessels map[string]*types.Vessel

func (f fakeVessels) GetVessel(_ context.Context, id string) (*types.Vessel, error) {
	v, ok := f[id]
	if !ok {
		return nil, errors.New("vessel not found")
	}
	return v, nil
}

// fakeCache records cache calls
type fakeCache struct {
	mu       sync.Mutex
	latest   map[string]*types.PositionCheck
	failures map[string]*types.PollFailure
	err      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		latest:   make(map[string]*types.PositionCheck),
		failures: make(map[string]*types.PollFailure),
	}
}

func (f *fakeCache) StoreLatestPosition(_ context.Context, check *types.PositionCheck) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.latest[check.VesselID] = check
	return nil
}

func (f *fakeCache) SetPollFailure(_ context.Context, failure *types.PollFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.failures[failure.VesselID] = failure
	return nil
}

func (f *fakeCache) ClearPollFailure(_ context.Context, vesselID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.failures, vesselID)
	return nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu      sync.Mutex
	checks  []types.PositionCheck
	entries []types.SeaTimeEntry
	err     error
}

func (f *fakePublisher) PublishPositionCheck(check *types.PositionCheck) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, *check)
	return f.err
}

func (f *fakePublisher) PublishSeaTimeEntry(entry *types.SeaTimeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return f.err
}
