package core

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"time"

	"github.com/petsync/sureflap-sync/pkg/config"
	"github.com/petsync/sureflap-sync/pkg/model"
)

var nonWord = regexp.MustCompile(`\W`)

// SanitizeName replaces every non-word character with an underscore so
// the result is safe as a state path segment. Idempotent.
func SanitizeName(name string) string {
	return nonWord.ReplaceAllString(name, "_")
}

// Normalizer applies the pure per-cycle transforms to a freshly fetched
// snapshot before diffing: name sanitization, curfew representation and
// time zones, lock-mode folding, battery smoothing and derivation.
type Normalizer struct {
	loc      *time.Location
	battery  config.BatteryConfig
	warnings *SuppressionTable
	logger   *slog.Logger
}

// NewNormalizer creates a normalizer for the given display timezone.
func NewNormalizer(loc *time.Location, battery config.BatteryConfig, warnings *SuppressionTable, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		loc:      loc,
		battery:  battery,
		warnings: warnings,
		logger:   logger,
	}
}

// NormalizeHouseholds sanitizes household names, disambiguating
// sanitized-name collisions with an ID suffix.
func (n *Normalizer) NormalizeHouseholds(households []model.Household) []model.Household {
	out := make([]model.Household, len(households))
	seen := make(map[string]bool)
	for i, h := range households {
		h.NameOrg = h.Name
		h.Name = n.uniqueName(SanitizeName(h.Name), h.ID, seen, "household")
		out[i] = h
	}
	return out
}

// NormalizeDevices sanitizes device names, resolves parent hub names,
// folds curfew-locked mode to open for display, converts curfew times
// to local, and smooths battery readings against the previous cycle.
func (n *Normalizer) NormalizeDevices(devices []model.Device, prev *Snapshot) []model.Device {
	out := make([]model.Device, len(devices))

	// Hubs first so children can resolve sanitized parent names.
	hubNames := make(map[int64]string)
	seen := make(map[string]bool)
	for i, d := range devices {
		d.NameOrg = d.Name
		scope := fmt.Sprintf("%d/%d", d.HouseholdID, parentID(&d))
		d.Name = n.uniqueName(SanitizeName(d.Name), d.ID, seen, scope)
		if d.IsHub() {
			hubNames[d.ID] = d.Name
		}
		out[i] = d
	}

	for i := range out {
		d := &out[i]
		if d.ParentDeviceID != nil {
			d.ParentName = hubNames[*d.ParentDeviceID]
		}

		// Mode 4 means "locked by curfew"; curfew state is surfaced
		// separately, so fold it to open for display.
		if d.Status.Locking != nil && d.Status.Locking.Mode == model.LockModeCurfew {
			locking := *d.Status.Locking
			locking.Mode = model.LockModeOpen
			d.Status.Locking = &locking
		}

		d.Control.Curfew = curfewConvert(d.Control.Curfew, time.UTC, n.loc)

		if d.Status.Battery > 0 {
			if prevDev := previousDevice(prev, d.ID); prevDev != nil && prevDev.Status.Battery > 0 {
				d.Status.Battery = SmoothBattery(prevDev.Status.Battery, d.Status.Battery)
			}
			if r, ok := n.voltageRange(d.ProductID); ok {
				d.Status.BatteryPercentage = BatteryPercentage(r.Empty, r.Full, d.Status.Battery)
			}
		}
	}

	return out
}

// NormalizePets sanitizes pet names per household scope.
func (n *Normalizer) NormalizePets(pets []model.Pet) []model.Pet {
	out := make([]model.Pet, len(pets))
	seen := make(map[string]bool)
	for i, p := range pets {
		p.NameOrg = p.Name
		scope := fmt.Sprintf("%d", p.HouseholdID)
		p.Name = n.uniqueName(SanitizeName(p.Name), p.ID, seen, scope)
		out[i] = p
	}
	return out
}

// uniqueName disambiguates sanitized-name collisions within a scope by
// suffixing the entity ID, warning once per colliding entity.
func (n *Normalizer) uniqueName(name string, id int64, seen map[string]bool, scope string) string {
	k := scope + "/" + name
	if seen[k] {
		suffixed := fmt.Sprintf("%s_%d", name, id)
		n.warnings.Warn(WarnNameCollision, k,
			"sanitized name collision, disambiguating with id suffix",
			"name", name, "id", id, "renamed", suffixed)
		seen[scope+"/"+suffixed] = true
		return suffixed
	}
	seen[k] = true
	return name
}

// DetectCapabilities scans all devices for present device classes.
// Run once per session, during bootstrap.
func (n *Normalizer) DetectCapabilities(devices []model.Device) Capabilities {
	var caps Capabilities
	for i := range devices {
		switch devices[i].ProductID {
		case model.ProductCatFlap, model.ProductPetFlap:
			caps.HasFlap = true
		case model.ProductFeeder:
			caps.HasFeeder = true
		case model.ProductWaterDispenser:
			caps.HasDispenser = true
		}
	}
	return caps
}

// OfflineDevices returns the sanitized names of offline devices and
// whether everything is online.
func (n *Normalizer) OfflineDevices(devices []model.Device) ([]string, bool) {
	var offline []string
	for i := range devices {
		if !devices[i].Status.Online {
			offline = append(offline, devices[i].Name)
		}
	}
	return offline, len(offline) == 0
}

// CurfewToUTC converts a local-time curfew back to UTC for the API.
func (n *Normalizer) CurfewToUTC(c model.Curfew) model.Curfew {
	return curfewConvert(c, n.loc, time.UTC)
}

// Location returns the display timezone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

func (n *Normalizer) voltageRange(p model.ProductID) (config.VoltageRange, bool) {
	switch p {
	case model.ProductCatFlap, model.ProductPetFlap:
		return n.battery.Flap, true
	case model.ProductFeeder:
		return n.battery.Feeder, true
	case model.ProductWaterDispenser:
		return n.battery.Dispenser, true
	default:
		return config.VoltageRange{}, false
	}
}

func previousDevice(prev *Snapshot, id int64) *model.Device {
	if prev == nil {
		return nil
	}
	return prev.DeviceByID(id)
}

func parentID(d *model.Device) int64 {
	if d.ParentDeviceID == nil {
		return 0
	}
	return *d.ParentDeviceID
}

// SmoothBattery blends 1% of a new voltage reading with 99% of the
// previous smoothed value, rounding toward the direction of change and
// truncating to three decimals. Single-sample spikes barely move the
// displayed value; a sustained change still converges.
func SmoothBattery(prev, current float64) float64 {
	switch {
	case current > prev:
		return math.Ceil(current*10+prev*990) / 1000
	case current < prev:
		return math.Floor(current*10+prev*990) / 1000
	default:
		return prev
	}
}

// BatteryPercentage linearly interpolates a voltage between the
// configured empty and full points, clamped to [0,100].
func BatteryPercentage(empty, full, v float64) int {
	if v <= empty {
		return 0
	}
	if v >= full {
		return 100
	}
	return int(math.Round((v - empty) / (full - empty) * 100))
}
