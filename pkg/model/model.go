package model

import (
	"encoding/json"
	"time"
)

// ProductID identifies the hardware type of a Sure Petcare device.
type ProductID int

// Known product IDs as reported by the vendor API.
const (
	ProductHub            ProductID = 1
	ProductPetFlap        ProductID = 3
	ProductFeeder         ProductID = 4
	ProductCatFlap        ProductID = 6
	ProductWaterDispenser ProductID = 8
)

// Lock modes accepted by flaps. Mode 4 is reported by the API while a
// curfew holds the flap locked; it is never written back.
const (
	LockModeOpen        = 0
	LockModeLockedIn    = 1
	LockModeLockedOut   = 2
	LockModeLockedBoth  = 3
	LockModeCurfew      = 4
	LockModeWritableMax = 3
)

// Pet position values reported under position.where.
const (
	PositionInside  = 1
	PositionOutside = 2
)

// Food type IDs used in feeder bowl and report weight frames.
const (
	FoodTypeWet = 1
	FoodTypeDry = 2
)

// Household groups devices and pets under one account.
// Name is sanitized for use as a state path segment; NameOrg keeps the
// raw vendor value.
type Household struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	NameOrg string `json:"name_org"`
}

// CurfewSlot is a single daily lock window. Times are "HH:MM" strings;
// the API speaks UTC, the state store holds local time.
type CurfewSlot struct {
	Enabled    bool   `json:"enabled"`
	LockTime   string `json:"lock_time"`
	UnlockTime string `json:"unlock_time"`
}

// Curfew is an ordered list of lock windows. Cat flaps carry up to four
// slots; pet flaps exactly one (the API returns a bare object for those).
type Curfew []CurfewSlot

// Enabled reports whether any slot of the curfew is enabled.
func (c Curfew) Enabled() bool {
	for _, s := range c {
		if s.Enabled {
			return true
		}
	}
	return false
}

// Equal compares two curfews slot by slot, order-sensitive.
func (c Curfew) Equal(other Curfew) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Signal carries the RSSI pair the API intermittently reports.
type Signal struct {
	DeviceRSSI float64 `json:"device_rssi"`
	HubRSSI    float64 `json:"hub_rssi"`
}

// Locking is the flap lock state.
type Locking struct {
	Mode int `json:"mode"`
}

// Lid is the feeder lid control block.
type Lid struct {
	CloseDelay int `json:"close_delay"`
}

// Bowl describes one feeder bowl's fill state.
type Bowl struct {
	Index         int        `json:"index"`
	FoodType      int        `json:"food_type"`
	CurrentWeight float64    `json:"current_weight"`
	LastFilledAt  *time.Time `json:"last_filled_at,omitempty"`
}

// BowlControl describes the configured bowl layout of a feeder.
type BowlControl struct {
	Type     int          `json:"type"`
	Settings []BowlTarget `json:"settings,omitempty"`
}

// BowlTarget is a configured food type / target weight pair.
type BowlTarget struct {
	FoodType int     `json:"food_type"`
	Target   float64 `json:"target"`
}

// DeviceStatus is the read-only status block of a device.
type DeviceStatus struct {
	Online            bool     `json:"online"`
	Battery           float64  `json:"battery,omitempty"`
	BatteryPercentage int      `json:"battery_percentage,omitempty"`
	Locking           *Locking `json:"locking,omitempty"`
	Signal            *Signal  `json:"signal,omitempty"`
	Version           string   `json:"version,omitempty"`
	LEDMode           *int     `json:"led_mode,omitempty"`
	Bowls             []Bowl   `json:"bowl_status,omitempty"`
}

// DeviceControl is the writable control block of a device.
type DeviceControl struct {
	Curfew Curfew       `json:"curfew,omitempty"`
	Lid    *Lid         `json:"lid,omitempty"`
	Bowls  *BowlControl `json:"bowls,omitempty"`
}

// Tag links a pet's RFID tag to a device with an access profile.
type Tag struct {
	ID      int64 `json:"id"`
	Profile int   `json:"profile"`
}

// Device is a hub or one of its attached flaps/feeders/dispensers.
// Devices without a parent are hubs.
type Device struct {
	ID             int64         `json:"id"`
	ProductID      ProductID     `json:"product_id"`
	HouseholdID    int64         `json:"household_id"`
	Name           string        `json:"name"`
	NameOrg        string        `json:"name_org"`
	ParentDeviceID *int64        `json:"parent_device_id,omitempty"`
	ParentName     string        `json:"parent_name,omitempty"`
	Status         DeviceStatus  `json:"status"`
	Control        DeviceControl `json:"control"`
	Tags           []Tag         `json:"tags,omitempty"`
}

// IsHub reports whether the device is a hub (no parent device).
func (d *Device) IsHub() bool {
	return d.ParentDeviceID == nil
}

// IsFlap reports whether the device is a cat or pet flap.
func (d *Device) IsFlap() bool {
	return d.ProductID == ProductCatFlap || d.ProductID == ProductPetFlap
}

// MaxCurfewSlots returns how many curfew windows the flap type accepts.
func (d *Device) MaxCurfewSlots() int {
	switch d.ProductID {
	case ProductCatFlap:
		return 4
	case ProductPetFlap:
		return 1
	default:
		return 0
	}
}

// PetPosition is the last known location of a pet.
type PetPosition struct {
	Where int       `json:"where"`
	Since time.Time `json:"since"`
}

// Pet is a tagged animal registered in a household.
type Pet struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	NameOrg     string       `json:"name_org"`
	TagID       int64        `json:"tag_id"`
	HouseholdID int64        `json:"household_id"`
	Position    *PetPosition `json:"position,omitempty"`
}

// History event types. Only movement events are interpreted; everything
// else is projected verbatim.
const HistoryTypeMovement = 0

// HistoryMovement is one flap passage inside a history event.
type HistoryMovement struct {
	TagID     int64     `json:"tag_id"`
	DeviceID  int64     `json:"device_id"`
	Direction int       `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryPet identifies a pet referenced by a history event.
type HistoryPet struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// HistoryDevice identifies a device referenced by a history event.
type HistoryDevice struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// HistoryEvent is one per-household timeline entry. The vendor schema is
// unstable, so besides the typed fields needed for movement attribution
// the full decoded payload is retained in Raw and projected node by node.
type HistoryEvent struct {
	Type      int               `json:"type"`
	CreatedAt time.Time         `json:"created_at"`
	Pets      []HistoryPet      `json:"pets,omitempty"`
	Movements []HistoryMovement `json:"movements,omitempty"`
	Devices   []HistoryDevice   `json:"devices,omitempty"`

	Raw map[string]any `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps the raw payload tree.
func (e *HistoryEvent) UnmarshalJSON(data []byte) error {
	type alias HistoryEvent
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = HistoryEvent(a)
	e.Raw = raw
	return nil
}

// WeightFrame is one bowl's weight delta inside a feeding datapoint.
// Change is negative for consumption.
type WeightFrame struct {
	FoodType int     `json:"food_type_id"`
	Change   float64 `json:"change"`
	Weight   float64 `json:"weight"`
}

// Datapoint is one interval in a report section. To is zero for an
// interval still in progress. Duration is in seconds.
type Datapoint struct {
	From     time.Time     `json:"from"`
	To       time.Time     `json:"to"`
	Duration float64       `json:"duration,omitempty"`
	Context  int           `json:"context,omitempty"`
	Weights  []WeightFrame `json:"weights,omitempty"`
}

// ReportSection is a list of datapoints for one activity kind.
type ReportSection struct {
	Datapoints []Datapoint `json:"datapoints"`
}

// Report is the trailing 7-day aggregate for one pet.
type Report struct {
	PetID    int64         `json:"pet_id"`
	Feeding  ReportSection `json:"feeding"`
	Drinking ReportSection `json:"drinking"`
	Movement ReportSection `json:"movement"`
}
