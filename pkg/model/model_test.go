package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurfewDecodesBareObject(t *testing.T) {
	t.Parallel()

	// Pet flaps report a single bare object.
	var c Curfew
	require.NoError(t, json.Unmarshal([]byte(`{"enabled":true,"lock_time":"22:00","unlock_time":"07:00"}`), &c))
	require.Len(t, c, 1)
	assert.True(t, c[0].Enabled)
	assert.Equal(t, "22:00", c[0].LockTime)
}

func TestCurfewDecodesList(t *testing.T) {
	t.Parallel()

	var c Curfew
	require.NoError(t, json.Unmarshal([]byte(`[
		{"enabled":true,"lock_time":"22:00","unlock_time":"07:00"},
		{"enabled":false,"lock_time":"12:00","unlock_time":"13:00"}
	]`), &c))
	require.Len(t, c, 2)
	assert.False(t, c[1].Enabled)
}

func TestCurfewMarshalsAsList(t *testing.T) {
	t.Parallel()

	c := Curfew{{Enabled: true, LockTime: "22:00", UnlockTime: "07:00"}}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `[{"enabled":true,"lock_time":"22:00","unlock_time":"07:00"}]`, string(data))
}

func TestCurfewEnabled(t *testing.T) {
	t.Parallel()

	assert.False(t, Curfew{}.Enabled())
	assert.False(t, Curfew{{Enabled: false}}.Enabled())
	assert.True(t, Curfew{{Enabled: false}, {Enabled: true}}.Enabled())
}

func TestCurfewEqual(t *testing.T) {
	t.Parallel()

	a := Curfew{{Enabled: true, LockTime: "22:00", UnlockTime: "07:00"}}
	b := Curfew{{Enabled: true, LockTime: "22:00", UnlockTime: "07:00"}}
	c := Curfew{{Enabled: false, LockTime: "22:00", UnlockTime: "07:00"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestDeviceClassification(t *testing.T) {
	t.Parallel()

	parent := int64(1)

	hub := Device{ProductID: ProductHub}
	assert.True(t, hub.IsHub())
	assert.False(t, hub.IsFlap())
	assert.Zero(t, hub.MaxCurfewSlots())

	catFlap := Device{ProductID: ProductCatFlap, ParentDeviceID: &parent}
	assert.False(t, catFlap.IsHub())
	assert.True(t, catFlap.IsFlap())
	assert.Equal(t, 4, catFlap.MaxCurfewSlots())

	petFlap := Device{ProductID: ProductPetFlap, ParentDeviceID: &parent}
	assert.True(t, petFlap.IsFlap())
	assert.Equal(t, 1, petFlap.MaxCurfewSlots())

	feeder := Device{ProductID: ProductFeeder, ParentDeviceID: &parent}
	assert.False(t, feeder.IsFlap())
	assert.Zero(t, feeder.MaxCurfewSlots())
}

func TestHistoryEventKeepsRawPayload(t *testing.T) {
	t.Parallel()

	raw := `{
		"type": 0,
		"created_at": "2026-08-30T10:00:00Z",
		"movements": [{"tag_id": 77, "device_id": 5, "direction": 1, "created_at": "2026-08-30T10:00:00Z"}],
		"vendor_extra": {"nested": [1, 2, 3]}
	}`

	var e HistoryEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	assert.Equal(t, 0, e.Type)
	require.Len(t, e.Movements, 1)
	assert.Equal(t, int64(77), e.Movements[0].TagID)

	// Unknown fields survive in the raw tree.
	extra, ok := e.Raw["vendor_extra"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, extra["nested"], 3)
}
