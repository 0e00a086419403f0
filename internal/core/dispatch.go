package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/petsync/sureflap-sync/pkg/model"

	"github.com/petsync/sureflap-sync/internal/store"
)

// SnapshotProvider hands the dispatcher the current normalized view for
// name resolution.
type SnapshotProvider interface {
	Current() *Snapshot
}

// Dispatcher consumes write intents from the state store, validates
// them against the current snapshot and pushes accepted changes to the
// vendor API. Control writes are never retried; a failed or rejected
// write reverts the store leaf to its last known value so front ends
// see the bounce.
type Dispatcher struct {
	api    model.APIClient
	store  model.Store
	source model.IntentSource
	snaps  SnapshotProvider
	norm   *Normalizer
	replay ReplayStore
	logger *slog.Logger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(api model.APIClient, st model.Store, source model.IntentSource, snaps SnapshotProvider, norm *Normalizer, replay ReplayStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		api:    api,
		store:  st,
		source: source,
		snaps:  snaps,
		norm:   norm,
		replay: replay,
		logger: logger,
	}
}

// Run processes intents until the context is canceled or the intent
// channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case intent, ok := <-d.source.Intents():
			if !ok {
				return nil
			}
			d.handle(ctx, intent)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, intent model.WriteIntent) {
	path := store.Join(intent.Path...)
	cmd, err := ParseCommand(intent.Path)
	if err != nil {
		d.logger.Warn("rejecting write intent", "path", path, "error", err)
		return
	}

	snap := d.snaps.Current()
	if snap == nil {
		d.logger.Warn("rejecting write intent, no session", "path", path, "command", cmd.Kind.String())
		return
	}

	if err := d.apply(ctx, snap, cmd, intent.Value); err != nil {
		d.logger.Warn("write intent failed, reverting",
			"path", path, "command", cmd.Kind.String(), "error", err)
		d.revert(ctx, path)
		return
	}
	d.logger.Info("write intent applied", "path", path, "command", cmd.Kind.String(), "value", intent.Value)
}

// revert republishes the store's current value at path so subscribers
// observe the rejected change bouncing back.
func (d *Dispatcher) revert(ctx context.Context, path string) {
	old, found, err := d.store.Get(ctx, path)
	if err != nil || !found {
		return
	}
	if err := d.store.Set(ctx, path, old); err != nil {
		d.logger.Warn("reverting store leaf failed", "path", path, "error", err)
	}
}

// confirm writes the accepted value so front ends update ahead of the
// next poll cycle.
func (d *Dispatcher) confirm(ctx context.Context, path string, value any) {
	if err := d.store.Set(ctx, path, value); err != nil {
		d.logger.Warn("confirming store leaf failed", "path", path, "error", err)
	}
}

func (d *Dispatcher) apply(ctx context.Context, snap *Snapshot, cmd Command, value any) error {
	path := store.Join(cmd.Path...)

	switch cmd.Kind {
	case CmdLockMode:
		device, err := d.flap(snap, cmd.Device)
		if err != nil {
			return err
		}
		mode, ok := asInt(value)
		if !ok || mode < model.LockModeOpen || mode > model.LockModeWritableMax {
			return fmt.Errorf("invalid lock mode %v", value)
		}
		if err := d.api.SetLockMode(ctx, device.ID, mode); err != nil {
			return err
		}
		d.confirm(ctx, path, mode)
		return nil

	case CmdCurfewEnabled:
		device, err := d.flap(snap, cmd.Device)
		if err != nil {
			return err
		}
		enable, ok := asBool(value)
		if !ok {
			return fmt.Errorf("invalid curfew_enabled value %v", value)
		}
		curfew, err := d.curfewFor(ctx, device, enable)
		if err != nil {
			return err
		}
		if err := d.writeCurfew(ctx, device, curfew, enable); err != nil {
			return err
		}
		d.confirm(ctx, path, enable)
		return nil

	case CmdCurfewReplace:
		device, err := d.flap(snap, cmd.Device)
		if err != nil {
			return err
		}
		curfew, err := decodeCurfew(value)
		if err != nil {
			return err
		}
		if err := ValidateCurfew(curfew, device); err != nil {
			return err
		}
		if err := d.writeCurfew(ctx, device, curfew, curfew.Enabled()); err != nil {
			return err
		}
		d.confirm(ctx, path, jsonLeaf(curfew))
		return nil

	case CmdCloseDelay:
		device := snap.DeviceByName(cmd.Device)
		if device == nil || device.ProductID != model.ProductFeeder {
			return fmt.Errorf("no feeder named %q", cmd.Device)
		}
		delay, ok := asInt(value)
		if !ok || (delay != 0 && delay != 4 && delay != 20) {
			return fmt.Errorf("invalid close delay %v, must be 0, 4 or 20", value)
		}
		if err := d.api.SetCloseDelay(ctx, device.ID, delay); err != nil {
			return err
		}
		d.confirm(ctx, path, delay)
		return nil

	case CmdLEDMode:
		device := snap.DeviceByName(cmd.Device)
		if device == nil || !device.IsHub() {
			return fmt.Errorf("no hub named %q", cmd.Device)
		}
		mode, ok := asInt(value)
		if !ok || (mode != 0 && mode != 1 && mode != 4) {
			return fmt.Errorf("invalid led mode %v, must be 0, 1 or 4", value)
		}
		if err := d.api.SetLEDMode(ctx, device.ID, mode); err != nil {
			return err
		}
		d.confirm(ctx, path, mode)
		return nil

	case CmdPetType:
		device, err := d.flap(snap, cmd.Device)
		if err != nil {
			return err
		}
		pet := snap.PetByName(cmd.Pet)
		if pet == nil {
			return fmt.Errorf("no pet named %q", cmd.Pet)
		}
		profile, ok := asInt(value)
		if !ok || (profile != 2 && profile != 3) {
			return fmt.Errorf("invalid pet type %v, must be 2 or 3", value)
		}
		if err := d.api.SetPetType(ctx, device.ID, pet.TagID, profile); err != nil {
			return err
		}
		d.confirm(ctx, path, profile)
		return nil

	case CmdPetAssignment:
		device := snap.DeviceByName(cmd.Device)
		if device == nil || device.IsHub() {
			return fmt.Errorf("no assignable device named %q", cmd.Device)
		}
		pet := snap.PetByName(cmd.Pet)
		if pet == nil {
			return fmt.Errorf("no pet named %q", cmd.Pet)
		}
		assign, ok := asBool(value)
		if !ok {
			return fmt.Errorf("invalid assignment value %v", value)
		}
		if err := d.api.SetPetAssignment(ctx, device.ID, pet.TagID, assign); err != nil {
			return err
		}
		d.confirm(ctx, path, assign)
		return nil

	case CmdPetLocation:
		pet := snap.PetByName(cmd.Pet)
		if pet == nil {
			return fmt.Errorf("no pet named %q", cmd.Pet)
		}
		inside, ok := asBool(value)
		if !ok {
			return fmt.Errorf("invalid inside value %v", value)
		}
		where := model.PositionOutside
		if inside {
			where = model.PositionInside
		}
		if err := d.api.SetPetLocation(ctx, pet.ID, where, time.Now()); err != nil {
			return err
		}
		d.confirm(ctx, path, inside)
		return nil
	}

	return fmt.Errorf("unhandled command %s", cmd.Kind)
}

func (d *Dispatcher) flap(snap *Snapshot, name string) (*model.Device, error) {
	device := snap.DeviceByName(name)
	if device == nil || !device.IsFlap() {
		return nil, fmt.Errorf("no flap named %q", name)
	}
	return device, nil
}

// curfewFor builds the slot list for an enable or disable toggle.
// Enabling replays the last enabled curfew from the replay store,
// falling back to the device's current slots with every window switched
// on. Disabling keeps the current windows and switches them all off, so
// the times survive the round trip.
func (d *Dispatcher) curfewFor(ctx context.Context, device *model.Device, enable bool) (model.Curfew, error) {
	if enable {
		if stored, ok, err := d.replay.LastEnabledCurfew(ctx, device.ID); err == nil && ok {
			return stored, nil
		} else if err != nil {
			d.logger.Warn("reading stored curfew failed, falling back to current slots",
				"device", device.Name, "error", err)
		}
	}
	if len(device.Control.Curfew) == 0 {
		return nil, fmt.Errorf("device %s has no curfew windows to toggle", device.Name)
	}
	out := make(model.Curfew, len(device.Control.Curfew))
	copy(out, device.Control.Curfew)
	for i := range out {
		out[i].Enabled = enable
	}
	return out, nil
}

// writeCurfew converts to UTC and pushes a curfew, persisting the local
// representation when it ends up enabled. Pet flaps take a bare slot.
func (d *Dispatcher) writeCurfew(ctx context.Context, device *model.Device, curfew model.Curfew, enabled bool) error {
	if err := ValidateCurfew(curfew, device); err != nil {
		return err
	}
	utc := d.norm.CurfewToUTC(curfew)
	var err error
	if device.ProductID == model.ProductPetFlap {
		err = d.api.SetCurfewSingle(ctx, device.ID, utc[0])
	} else {
		err = d.api.SetCurfew(ctx, device.ID, utc)
	}
	if err != nil {
		return err
	}
	if enabled {
		if perr := d.replay.SetLastEnabledCurfew(ctx, device.ID, curfew); perr != nil {
			d.logger.Warn("persisting enabled curfew failed", "device", device.Name, "error", perr)
		}
	}
	return nil
}

// decodeCurfew accepts the shapes a curfew arrives in from the store:
// a JSON string, or an already decoded array or object tree.
func decodeCurfew(value any) (model.Curfew, error) {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	default:
		var err error
		raw, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding curfew payload: %w", err)
		}
	}
	var c model.Curfew
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding curfew payload: %w", err)
	}
	return c, nil
}

// asInt coerces JSON-decoded numeric shapes to an int, rejecting
// fractional values.
func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		var f float64
		if err := json.Unmarshal([]byte(v), &f); err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}

// asBool coerces JSON-decoded boolean shapes, accepting the common
// string and 0/1 spellings front ends send.
func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case float64:
		if v == 0 {
			return false, true
		}
		if v == 1 {
			return true, true
		}
		return false, false
	case string:
		switch v {
		case "true", "1", "on":
			return true, true
		case "false", "0", "off":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}
