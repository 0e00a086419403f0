package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/petsync/sureflap-sync/pkg/model"

	"github.com/petsync/sureflap-sync/internal/store"
)

// Projector writes normalized snapshots into the state store. Every
// leaf is diffed against the store's last written value, so unchanged
// fields never hit the store; the heartbeat is the only unconditional
// write per cycle.
type Projector struct {
	store    model.Store
	warnings *SuppressionTable
	loc      *time.Location
	logger   *slog.Logger
	version  string
}

// NewProjector creates a projector. loc is the display timezone the
// curfew times in snapshots are expressed in.
func NewProjector(st model.Store, warnings *SuppressionTable, loc *time.Location, version string, logger *slog.Logger) *Projector {
	return &Projector{
		store:    st,
		warnings: warnings,
		loc:      loc,
		logger:   logger,
		version:  version,
	}
}

// writeChanged writes value at path unless the store already holds an
// equal value. Store errors are non-fatal: logged once per path via the
// suppression table, then skipped until the write succeeds again.
func (p *Projector) writeChanged(ctx context.Context, path string, value any) {
	old, found, err := p.store.Get(ctx, path)
	if err == nil && found && equalValues(old, value) {
		return
	}
	p.setLeaf(ctx, path, value)
}

// setLeaf writes unconditionally, with the same error suppression.
func (p *Projector) setLeaf(ctx context.Context, path string, value any) {
	if err := p.store.Set(ctx, path, value); err != nil {
		p.warnings.Warn(WarnStoreWrite, path,
			"state write failed, skipping field", "path", path, "error", err)
		return
	}
	p.warnings.Clear(WarnStoreWrite, path)
}

// equalValues compares leaf values structurally. Values written by the
// projector are scalars or JSON strings, produced identically each
// cycle, so deep equality is exact.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// jsonLeaf encodes a value for storage as a JSON-string leaf.
func jsonLeaf(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteConnection records the session's connected flag.
func (p *Projector) WriteConnection(ctx context.Context, connected bool) {
	p.setLeaf(ctx, PathConnection, connected)
}

// WriteVersion records the running software version. Called once per
// session, during bootstrap.
func (p *Projector) WriteVersion(ctx context.Context) {
	p.setLeaf(ctx, PathVersion, p.version)
}

// Heartbeat records the cycle timestamp. Unconditional by design: it is
// the liveness signal consumers watch.
func (p *Projector) Heartbeat(ctx context.Context, now time.Time) {
	p.setLeaf(ctx, PathLastUpdate, now.Format(time.RFC3339))
}

// EnsureHierarchy creates the full object tree for the snapshot,
// idempotently. Run once per session, during bootstrap, so a changed
// installation (new devices, renamed pets) is repaired on reconnect.
func (p *Projector) EnsureHierarchy(ctx context.Context, snap *Snapshot, caps Capabilities) error {
	ensure := func(path string, kind model.ObjectKind) error {
		if err := p.store.EnsureObject(ctx, path, kind); err != nil {
			return fmt.Errorf("ensuring %s: %w", path, err)
		}
		return nil
	}

	if err := ensure("info", model.KindFolder); err != nil {
		return err
	}

	for i := range snap.Households {
		h := &snap.Households[i]
		if err := ensure(h.Name, model.KindFolder); err != nil {
			return err
		}
		for _, sub := range []string{"hubs", "pets", "history"} {
			if err := ensure(store.Join(h.Name, sub), model.KindFolder); err != nil {
				return err
			}
		}
	}

	for i := range snap.Devices {
		d := &snap.Devices[i]
		base, ok := snap.DevicePath(d)
		if !ok {
			continue
		}
		if err := ensure(base, model.KindDevice); err != nil {
			return err
		}
		if d.IsHub() {
			if err := ensure(store.Join(base, "control"), model.KindChannel); err != nil {
				return err
			}
			continue
		}
		for _, sub := range []string{"control", "control/pets"} {
			if err := ensure(store.Join(base, sub), model.KindChannel); err != nil {
				return err
			}
		}
	}

	for i := range snap.Pets {
		pet := &snap.Pets[i]
		base, ok := snap.PetPath(pet)
		if !ok {
			continue
		}
		if err := ensure(base, model.KindChannel); err != nil {
			return err
		}
		subs := []string{}
		if caps.HasFlap {
			subs = append(subs, "movement", "time_outside")
		}
		if caps.HasFeeder {
			subs = append(subs, "food")
		}
		if caps.HasDispenser {
			subs = append(subs, "water")
		}
		for _, sub := range subs {
			if err := ensure(store.Join(base, sub), model.KindFolder); err != nil {
				return err
			}
		}
	}

	return nil
}

// ProjectDevices writes device status and control mirrors.
func (p *Projector) ProjectDevices(ctx context.Context, snap *Snapshot) {
	for i := range snap.Devices {
		d := &snap.Devices[i]
		base, ok := snap.DevicePath(d)
		if !ok {
			p.warnings.Warn(WarnStoreWrite, "device/"+d.Name,
				"device has no resolvable path, skipping", "device", d.Name)
			continue
		}

		p.writeChanged(ctx, store.Join(base, "online"), d.Status.Online)
		p.writeChanged(ctx, store.Join(base, "name"), d.NameOrg)
		if d.Status.Version != "" {
			p.writeChanged(ctx, store.Join(base, "version"), d.Status.Version)
		}

		if d.IsHub() {
			p.projectHub(ctx, base, d)
			continue
		}
		p.projectBattery(ctx, base, d)
		p.projectSignal(ctx, base, d)

		switch {
		case d.IsFlap():
			p.projectFlap(ctx, base, snap, d)
		case d.ProductID == model.ProductFeeder:
			p.projectFeeder(ctx, base, snap, d)
		case d.ProductID == model.ProductWaterDispenser:
			p.projectBowls(ctx, base, d)
		}
	}
}

func (p *Projector) projectHub(ctx context.Context, base string, d *model.Device) {
	if d.Status.LEDMode != nil {
		p.writeChanged(ctx, store.Join(base, "led_mode"), *d.Status.LEDMode)
		p.writeChanged(ctx, store.Join(base, "control", "led_mode"), *d.Status.LEDMode)
	}
}

func (p *Projector) projectBattery(ctx context.Context, base string, d *model.Device) {
	entity := "battery/" + d.Name
	if d.Status.Battery <= 0 {
		p.warnings.Warn(WarnNoBattery, entity,
			"no battery data for device", "device", d.Name)
		return
	}
	p.warnings.Clear(WarnNoBattery, entity)
	p.writeChanged(ctx, store.Join(base, "battery"), d.Status.Battery)
	p.writeChanged(ctx, store.Join(base, "battery_percentage"), d.Status.BatteryPercentage)
}

func (p *Projector) projectSignal(ctx context.Context, base string, d *model.Device) {
	entity := "signal/" + d.Name
	if d.Status.Signal == nil {
		// The vendor drops this block intermittently; the suppression
		// entry for it is deliberately never cleared.
		p.warnings.Warn(WarnNoSignal, entity,
			"no signal data for device", "device", d.Name)
		return
	}
	p.writeChanged(ctx, store.Join(base, "device_rssi"), d.Status.Signal.DeviceRSSI)
	p.writeChanged(ctx, store.Join(base, "hub_rssi"), d.Status.Signal.HubRSSI)
}

func (p *Projector) projectFlap(ctx context.Context, base string, snap *Snapshot, d *model.Device) {
	lockEntity := "lock/" + d.Name
	if d.Status.Locking == nil {
		p.warnings.Warn(WarnNoLockMode, lockEntity,
			"no lock mode for flap", "device", d.Name)
	} else {
		p.warnings.Clear(WarnNoLockMode, lockEntity)
		p.writeChanged(ctx, store.Join(base, "lock_mode"), d.Status.Locking.Mode)
		p.writeChanged(ctx, store.Join(base, "control", "lockmode"), d.Status.Locking.Mode)
	}

	curfewEntity := "curfew/" + d.Name
	if len(d.Control.Curfew) == 0 {
		p.warnings.Warn(WarnNoCurfew, curfewEntity,
			"no curfew data for flap", "device", d.Name)
	} else {
		p.warnings.Clear(WarnNoCurfew, curfewEntity)
		p.writeChanged(ctx, store.Join(base, "curfew"), jsonLeaf(d.Control.Curfew))
		p.writeChanged(ctx, store.Join(base, "curfew_enabled"), d.Control.Curfew.Enabled())
		p.writeChanged(ctx, store.Join(base, "curfew_active"), IsCurfewActive(d.Control.Curfew, time.Now().In(p.loc)))
		p.writeChanged(ctx, store.Join(base, "control", "curfew_enabled"), d.Control.Curfew.Enabled())
		p.writeChanged(ctx, store.Join(base, "control", "current_curfew"), jsonLeaf(d.Control.Curfew))
	}

	p.projectAssignments(ctx, base, snap, d, true)
}

func (p *Projector) projectFeeder(ctx context.Context, base string, snap *Snapshot, d *model.Device) {
	if d.Control.Lid != nil {
		p.writeChanged(ctx, store.Join(base, "close_delay"), d.Control.Lid.CloseDelay)
		p.writeChanged(ctx, store.Join(base, "control", "close_delay"), d.Control.Lid.CloseDelay)
	}
	p.projectBowls(ctx, base, d)
	p.projectAssignments(ctx, base, snap, d, false)
}

func (p *Projector) projectBowls(ctx context.Context, base string, d *model.Device) {
	entity := "bowls/" + d.Name
	if len(d.Status.Bowls) == 0 {
		p.warnings.Warn(WarnNoBowls, entity,
			"no bowl status for device", "device", d.Name)
		return
	}
	p.warnings.Clear(WarnNoBowls, entity)
	for _, bowl := range d.Status.Bowls {
		bb := store.Join(base, "bowls", fmt.Sprintf("%d", bowl.Index))
		p.writeChanged(ctx, store.Join(bb, "food_type"), bowl.FoodType)
		p.writeChanged(ctx, store.Join(bb, "weight"), bowl.CurrentWeight)
		if bowl.LastFilledAt != nil {
			p.writeChanged(ctx, store.Join(bb, "last_filled_at"), bowl.LastFilledAt.Format(time.RFC3339))
		}
	}
}

// projectAssignments mirrors per-pet tag assignment (and, for flaps,
// the access profile) under the device's control channel.
func (p *Projector) projectAssignments(ctx context.Context, base string, snap *Snapshot, d *model.Device, withType bool) {
	assignedNames := make([]string, 0, len(d.Tags))
	for _, tag := range d.Tags {
		pet := snap.petByTag(tag.ID)
		if pet == nil {
			continue
		}
		assignedNames = append(assignedNames, pet.Name)
		petBase := store.Join(base, "control", "pets", pet.Name)
		p.writeChanged(ctx, store.Join(petBase, "assigned"), true)
		if withType {
			p.writeChanged(ctx, store.Join(petBase, "type"), tag.Profile)
		}
	}

	// Pets of the same household that are not assigned get an explicit
	// false so toggling works from the store side.
	for i := range snap.Pets {
		pet := &snap.Pets[i]
		if pet.HouseholdID != d.HouseholdID || containsString(assignedNames, pet.Name) {
			continue
		}
		p.writeChanged(ctx, store.Join(base, "control", "pets", pet.Name, "assigned"), false)
	}

	p.writeChanged(ctx, store.Join(base, "assigned_pets"), jsonLeaf(assignedNames))
}

// ProjectPets writes pet position and identity leaves.
func (p *Projector) ProjectPets(ctx context.Context, snap *Snapshot, caps Capabilities) {
	for i := range snap.Pets {
		pet := &snap.Pets[i]
		base, ok := snap.PetPath(pet)
		if !ok {
			continue
		}
		p.writeChanged(ctx, store.Join(base, "name"), pet.NameOrg)

		if !caps.HasFlap {
			continue
		}
		entity := fmt.Sprintf("position/%d", pet.ID)
		if pet.Position == nil {
			p.warnings.Warn(WarnNoPosition, entity,
				"no position data for pet", "pet", pet.Name)
			continue
		}
		p.warnings.Clear(WarnNoPosition, entity)
		p.writeChanged(ctx, store.Join(base, "inside"), pet.Position.Where == model.PositionInside)
		p.writeChanged(ctx, store.Join(base, "since"), pet.Position.Since.Format(time.RFC3339))
	}
}

// ProjectOffline writes the offline-device surface.
func (p *Projector) ProjectOffline(ctx context.Context, offline []string, allOnline bool) {
	p.writeChanged(ctx, PathAllOnline, allOnline)
	p.writeChanged(ctx, PathOfflineDevices, jsonLeaf(offline))
}

func (s *Snapshot) petByTag(tagID int64) *model.Pet {
	for i := range s.Pets {
		if s.Pets[i].TagID == tagID {
			return &s.Pets[i]
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
