package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petsync/sureflap-sync/internal/store"
	"github.com/petsync/sureflap-sync/pkg/model"
)

// fakeAPI records control writes and serves canned fetch data.
type fakeAPI struct {
	households []model.Household
	devices    map[int64][]model.Device
	pets       []model.Pet
	history    map[int64][]model.HistoryEvent
	reports    map[int64]*model.Report

	loginErr error
	writeErr error

	logins int
	calls  []string
}

func (f *fakeAPI) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAPI) Login(context.Context) error {
	f.logins++
	return f.loginErr
}

func (f *fakeAPI) Households(context.Context) ([]model.Household, error) {
	return f.households, nil
}

func (f *fakeAPI) DevicesForHousehold(_ context.Context, householdID int64) ([]model.Device, error) {
	return f.devices[householdID], nil
}

func (f *fakeAPI) Pets(context.Context) ([]model.Pet, error) {
	return f.pets, nil
}

func (f *fakeAPI) HistoryForHousehold(_ context.Context, householdID int64) ([]model.HistoryEvent, error) {
	return f.history[householdID], nil
}

func (f *fakeAPI) ReportForPet(_ context.Context, _, petID int64) (*model.Report, error) {
	if r, ok := f.reports[petID]; ok {
		return r, nil
	}
	return &model.Report{PetID: petID}, nil
}

func (f *fakeAPI) SetLockMode(_ context.Context, deviceID int64, mode int) error {
	f.record("SetLockMode(%d,%d)", deviceID, mode)
	return f.writeErr
}

func (f *fakeAPI) SetLEDMode(_ context.Context, deviceID int64, mode int) error {
	f.record("SetLEDMode(%d,%d)", deviceID, mode)
	return f.writeErr
}

func (f *fakeAPI) SetCloseDelay(_ context.Context, deviceID int64, delay int) error {
	f.record("SetCloseDelay(%d,%d)", deviceID, delay)
	return f.writeErr
}

func (f *fakeAPI) SetPetType(_ context.Context, deviceID, tagID int64, profile int) error {
	f.record("SetPetType(%d,%d,%d)", deviceID, tagID, profile)
	return f.writeErr
}

func (f *fakeAPI) SetPetLocation(_ context.Context, petID int64, where int, _ time.Time) error {
	f.record("SetPetLocation(%d,%d)", petID, where)
	return f.writeErr
}

func (f *fakeAPI) SetCurfew(_ context.Context, deviceID int64, curfew model.Curfew) error {
	f.record("SetCurfew(%d,%d slots,enabled=%v)", deviceID, len(curfew), curfew.Enabled())
	return f.writeErr
}

func (f *fakeAPI) SetCurfewSingle(_ context.Context, deviceID int64, slot model.CurfewSlot) error {
	f.record("SetCurfewSingle(%d,%s-%s,enabled=%v)", deviceID, slot.LockTime, slot.UnlockTime, slot.Enabled)
	return f.writeErr
}

func (f *fakeAPI) SetPetAssignment(_ context.Context, deviceID, tagID int64, assigned bool) error {
	f.record("SetPetAssignment(%d,%d,%v)", deviceID, tagID, assigned)
	return f.writeErr
}

// fixedSnaps serves a constant snapshot.
type fixedSnaps struct{ snap *Snapshot }

func (s fixedSnaps) Current() *Snapshot { return s.snap }

func newTestDispatcher(t *testing.T, snap *Snapshot) (*Dispatcher, *fakeAPI, *store.MemoryStore, *MemoryReplayStore) {
	t.Helper()
	api := &fakeAPI{}
	st := store.NewMemoryStore()
	replay := NewMemoryReplayStore()
	norm := newTestNormalizer(t)
	d := NewDispatcher(api, st, st, fixedSnaps{snap}, norm, replay, testLogger())
	return d, api, st, replay
}

func TestDispatchLockMode(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	d, api, st, _ := newTestDispatcher(t, snap)
	ctx := context.Background()
	path := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "lockmode"}

	d.handle(ctx, model.WriteIntent{Path: path, Value: float64(3)})

	require.Equal(t, []string{"SetLockMode(2,3)"}, api.calls)
	v, ok, err := st.Get(ctx, "Home/hubs/Hub/flaps/Flap/control/lockmode")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestDispatchRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	flap := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control"}

	tests := []struct {
		name  string
		path  []string
		value any
	}{
		{"lock mode out of range", append(flap, "lockmode"), float64(7)},
		{"curfew lock mode rejected", append(flap, "lockmode"), float64(4)},
		{"fractional lock mode", append(flap, "lockmode"), 1.5},
		{"bad curfew flag", append(flap, "curfew_enabled"), "maybe"},
		{"unknown device", []string{"Home", "hubs", "Hub", "flaps", "Ghost", "control", "lockmode"}, float64(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, api, _, _ := newTestDispatcher(t, snap)
			d.handle(context.Background(), model.WriteIntent{Path: tt.path, Value: tt.value})
			assert.Empty(t, api.calls, "vendor API must not be called")
		})
	}
}

func TestDispatchRevertsOnAPIFailure(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	d, api, st, _ := newTestDispatcher(t, snap)
	ctx := context.Background()
	path := "Home/hubs/Hub/flaps/Flap/control/lockmode"

	// The projector had written mode 1 before.
	require.NoError(t, st.Set(ctx, path, 1))
	st.ResetCounters()

	api.writeErr = fmt.Errorf("HTTP 500")
	d.handle(ctx, model.WriteIntent{Path: store.Split(path), Value: float64(2)})

	// The API was attempted once, no retry, and the old value bounced back.
	assert.Len(t, api.calls, 1)
	v, _, err := st.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, st.SetCalls(path))
}

func TestDispatchCurfewDisablePreservesTimes(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	d, api, _, _ := newTestDispatcher(t, snap)
	ctx := context.Background()
	path := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "curfew_enabled"}

	d.handle(ctx, model.WriteIntent{Path: path, Value: false})

	require.Equal(t, []string{"SetCurfew(2,1 slots,enabled=false)"}, api.calls)
}

func TestDispatchCurfewEnableReplaysStored(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	// The device currently has one window; the stored curfew has two.
	stored := model.Curfew{
		{Enabled: true, LockTime: "21:00", UnlockTime: "06:00"},
		{Enabled: true, LockTime: "12:00", UnlockTime: "13:00"},
	}
	d, api, _, replay := newTestDispatcher(t, snap)
	ctx := context.Background()
	require.NoError(t, replay.SetLastEnabledCurfew(ctx, 2, stored))

	path := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "curfew_enabled"}
	d.handle(ctx, model.WriteIntent{Path: path, Value: true})

	require.Equal(t, []string{"SetCurfew(2,2 slots,enabled=true)"}, api.calls)
}

func TestDispatchCurfewEnableFallsBackToCurrentSlots(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	snap.Devices[1].Control.Curfew[0].Enabled = false
	d, api, _, _ := newTestDispatcher(t, snap)

	path := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "curfew_enabled"}
	d.handle(context.Background(), model.WriteIntent{Path: path, Value: true})

	require.Equal(t, []string{"SetCurfew(2,1 slots,enabled=true)"}, api.calls)
}

func TestDispatchCurfewReplacePersistsEnabled(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	d, api, _, replay := newTestDispatcher(t, snap)
	ctx := context.Background()

	path := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "current_curfew"}
	payload := `[{"enabled":true,"lock_time":"20:00","unlock_time":"08:00"}]`
	d.handle(ctx, model.WriteIntent{Path: path, Value: payload})

	require.Equal(t, []string{"SetCurfew(2,1 slots,enabled=true)"}, api.calls)

	stored, ok, err := replay.LastEnabledCurfew(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "20:00", stored[0].LockTime)
}

func TestDispatchCurfewReplaceRejectsTooManySlots(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	d, api, _, _ := newTestDispatcher(t, snap)

	slot := `{"enabled":true,"lock_time":"20:00","unlock_time":"08:00"}`
	payload := fmt.Sprintf("[%s,%s,%s,%s,%s]", slot, slot, slot, slot, slot)
	path := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "current_curfew"}
	d.handle(context.Background(), model.WriteIntent{Path: path, Value: payload})

	assert.Empty(t, api.calls)
}

func TestDispatchPetFlapCurfewSingle(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	snap.Devices[1].ProductID = model.ProductPetFlap
	d, api, _, _ := newTestDispatcher(t, snap)

	path := []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "current_curfew"}
	payload := `[{"enabled":true,"lock_time":"20:00","unlock_time":"08:00"}]`
	d.handle(context.Background(), model.WriteIntent{Path: path, Value: payload})

	require.Equal(t, []string{"SetCurfewSingle(2,20:00-08:00,enabled=true)"}, api.calls)
}

func TestDispatchPetControls(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	d, api, _, _ := newTestDispatcher(t, snap)
	ctx := context.Background()

	d.handle(ctx, model.WriteIntent{
		Path:  []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "pets", "Max", "type"},
		Value: float64(3),
	})
	d.handle(ctx, model.WriteIntent{
		Path:  []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "pets", "Max", "assigned"},
		Value: false,
	})
	d.handle(ctx, model.WriteIntent{
		Path:  []string{"Home", "pets", "Max", "inside"},
		Value: false,
	})

	assert.Equal(t, []string{
		"SetPetType(2,77,3)",
		"SetPetAssignment(2,77,false)",
		"SetPetLocation(100,2)",
	}, api.calls)
}

func TestDispatchHubLEDMode(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	d, api, _, _ := newTestDispatcher(t, snap)

	d.handle(context.Background(), model.WriteIntent{
		Path:  []string{"Home", "hubs", "Hub", "control", "led_mode"},
		Value: float64(4),
	})
	require.Equal(t, []string{"SetLEDMode(1,4)"}, api.calls)

	// 2 is not a valid LED mode.
	api.calls = nil
	d.handle(context.Background(), model.WriteIntent{
		Path:  []string{"Home", "hubs", "Hub", "control", "led_mode"},
		Value: float64(2),
	})
	assert.Empty(t, api.calls)
}

func TestDispatchWithoutSession(t *testing.T) {
	t.Parallel()

	d, api, _, _ := newTestDispatcher(t, nil)
	d.handle(context.Background(), model.WriteIntent{
		Path:  []string{"Home", "hubs", "Hub", "flaps", "Flap", "control", "lockmode"},
		Value: float64(1),
	})
	assert.Empty(t, api.calls)
}
