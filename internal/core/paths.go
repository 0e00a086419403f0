package core

import (
	"github.com/petsync/sureflap-sync/pkg/model"

	"github.com/petsync/sureflap-sync/internal/store"
)

// State paths under the info subtree. Written by the orchestrator.
const (
	PathConnection     = "info/connection"
	PathVersion        = "info/version"
	PathLastUpdate     = "info/last_update"
	PathAllOnline      = "info/all_devices_online"
	PathOfflineDevices = "info/offline_devices"
)

// groupSegment returns the hierarchy segment a device class lives
// under below its hub.
func groupSegment(p model.ProductID) string {
	switch p {
	case model.ProductCatFlap, model.ProductPetFlap:
		return "flaps"
	case model.ProductFeeder:
		return "feeders"
	case model.ProductWaterDispenser:
		return "water"
	default:
		return "devices"
	}
}

// DevicePath returns the store path of a device's channel. Hubs live
// directly under the household; attached devices under their hub,
// grouped by class. Returns false when the owning household or parent
// hub cannot be resolved.
func (s *Snapshot) DevicePath(d *model.Device) (string, bool) {
	h := s.HouseholdByID(d.HouseholdID)
	if h == nil {
		return "", false
	}
	if d.IsHub() {
		return store.Join(h.Name, "hubs", d.Name), true
	}
	if d.ParentName == "" {
		return "", false
	}
	return store.Join(h.Name, "hubs", d.ParentName, groupSegment(d.ProductID), d.Name), true
}

// PetPath returns the store path of a pet's channel.
func (s *Snapshot) PetPath(p *model.Pet) (string, bool) {
	h := s.HouseholdByID(p.HouseholdID)
	if h == nil {
		return "", false
	}
	return store.Join(h.Name, "pets", p.Name), true
}

// HistoryPath returns the root of a household's history subtree.
func (s *Snapshot) HistoryPath(h *model.Household) string {
	return store.Join(h.Name, "history")
}
