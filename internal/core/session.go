package core

import (
	"github.com/petsync/sureflap-sync/pkg/model"
)

// ConnState is the orchestrator's connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateAuthenticating
	StateFetchingHouseholds
	StateRunning
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateFetchingHouseholds:
		return "fetching_households"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// SessionPhase gates one-time side effects after a (re)connect.
// Bootstrapping covers the first successful cycle: hierarchy repair,
// version write and capability detection happen there, then the session
// moves to Steady.
type SessionPhase int

const (
	PhaseBootstrapping SessionPhase = iota
	PhaseSteady
)

// Capabilities records which device classes are present. Detected once
// per session; gates pet sub-trees and report fetches.
type Capabilities struct {
	HasFlap      bool
	HasFeeder    bool
	HasDispenser bool
}

// Any reports whether any report-relevant device class is present.
func (c Capabilities) Any() bool {
	return c.HasFlap || c.HasFeeder || c.HasDispenser
}

// Snapshot is one cycle's normalized view of the vendor state. It is
// immutable once built: the orchestrator replaces the whole value each
// cycle and keeps the previous one for diffing only.
type Snapshot struct {
	Households []model.Household
	Devices    []model.Device
	Pets       []model.Pet
	// History events per household ID.
	History map[int64][]model.HistoryEvent
	// Reports per pet ID.
	Reports map[int64]*model.Report
}

// DeviceByID looks up a device.
func (s *Snapshot) DeviceByID(id int64) *model.Device {
	for i := range s.Devices {
		if s.Devices[i].ID == id {
			return &s.Devices[i]
		}
	}
	return nil
}

// DeviceByName looks up a device by sanitized name.
func (s *Snapshot) DeviceByName(name string) *model.Device {
	for i := range s.Devices {
		if s.Devices[i].Name == name {
			return &s.Devices[i]
		}
	}
	return nil
}

// PetByName looks up a pet by sanitized name.
func (s *Snapshot) PetByName(name string) *model.Pet {
	for i := range s.Pets {
		if s.Pets[i].Name == name {
			return &s.Pets[i]
		}
	}
	return nil
}

// PetByID looks up a pet.
func (s *Snapshot) PetByID(id int64) *model.Pet {
	for i := range s.Pets {
		if s.Pets[i].ID == id {
			return &s.Pets[i]
		}
	}
	return nil
}

// HouseholdByID looks up a household.
func (s *Snapshot) HouseholdByID(id int64) *model.Household {
	for i := range s.Households {
		if s.Households[i].ID == id {
			return &s.Households[i]
		}
	}
	return nil
}
