package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/petsync/sureflap-sync/pkg/model"

	"github.com/petsync/sureflap-sync/internal/store"
)

// ConsumptionMetrics aggregates today's feeding or drinking activity
// for one pet.
type ConsumptionMetrics struct {
	Count     int
	TimeSpent float64
	LastTime  time.Time
	WetWeight float64
	DryWeight float64
}

// OutsideMetrics aggregates today's time spent outside for one pet.
type OutsideMetrics struct {
	Count    int
	Duration float64
}

// MovementInfo is the most recent flap passage attributed to a pet.
type MovementInfo struct {
	Direction int
	FlapName  string
	FlapID    int64
	Time      time.Time
}

// PetMetrics bundles one pet's derived values for the metrics sink.
type PetMetrics struct {
	Household string
	Pet       string
	Feeding   *ConsumptionMetrics
	Drinking  *ConsumptionMetrics
	Outside   *OutsideMetrics
}

// sameLocalDay reports whether t falls on now's calendar day in loc.
func sameLocalDay(t, now time.Time, loc *time.Location) bool {
	ty, tm, td := t.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ty == ny && tm == nm && td == nd
}

// localMidnight returns the start of now's calendar day in loc.
func localMidnight(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Consumption derives today's feeding or drinking totals from a report
// section. Only intervals ending today count, and only closed intervals
// with context 1 (a completed visit). Weight changes are negated so
// consumption is positive. LastTime is the latest interval end across
// the whole section, today or not.
func Consumption(sec model.ReportSection, now time.Time, loc *time.Location) ConsumptionMetrics {
	var m ConsumptionMetrics
	for _, dp := range sec.Datapoints {
		if !dp.To.IsZero() && dp.To.After(m.LastTime) {
			m.LastTime = dp.To
		}
		if dp.To.IsZero() || dp.Context != 1 || !sameLocalDay(dp.To, now, loc) {
			continue
		}
		m.Count++
		m.TimeSpent += dp.Duration
		for _, w := range dp.Weights {
			switch w.FoodType {
			case model.FoodTypeWet:
				m.WetWeight += -w.Change
			case model.FoodTypeDry:
				m.DryWeight += -w.Change
			}
		}
	}
	return m
}

// TimeOutside derives today's outside totals from the movement section.
// Only closed intervals whose end falls today count. Intervals lying
// fully inside today contribute the vendor's own duration field, which
// can differ from the timestamp delta; an interval that started
// yesterday is clamped to local midnight so only today's share counts.
func TimeOutside(sec model.ReportSection, now time.Time, loc *time.Location) OutsideMetrics {
	var m OutsideMetrics
	midnight := localMidnight(now, loc)
	for _, dp := range sec.Datapoints {
		if dp.To.IsZero() || !sameLocalDay(dp.To, now, loc) {
			continue
		}
		m.Count++
		if sameLocalDay(dp.From, now, loc) {
			m.Duration += dp.Duration
			continue
		}
		start := dp.From
		if start.Before(midnight) {
			start = midnight
		}
		if dp.To.After(start) {
			m.Duration += dp.To.Sub(start).Seconds()
		}
	}
	return m
}

// LastMovement scans history movement events for the newest passage of
// the pet's tag. Passages with direction 0 are status frames, not
// movements, and are skipped.
func LastMovement(events []model.HistoryEvent, pet *model.Pet, snap *Snapshot) *MovementInfo {
	return lastMovementByTag(events, func(tagID int64) bool { return tagID == pet.TagID }, snap)
}

// LastUnknownMovement returns the newest passage not attributable to any
// registered pet (tag ID 0 or unknown).
func LastUnknownMovement(events []model.HistoryEvent, snap *Snapshot) *MovementInfo {
	return lastMovementByTag(events, func(tagID int64) bool {
		return tagID == 0 || snap.petByTag(tagID) == nil
	}, snap)
}

func lastMovementByTag(events []model.HistoryEvent, match func(int64) bool, snap *Snapshot) *MovementInfo {
	var latest *MovementInfo
	for i := range events {
		e := &events[i]
		if e.Type != model.HistoryTypeMovement {
			continue
		}
		for _, mv := range e.Movements {
			if mv.Direction == 0 || !match(mv.TagID) {
				continue
			}
			if latest != nil && !mv.CreatedAt.After(latest.Time) {
				continue
			}
			info := MovementInfo{
				Direction: mv.Direction,
				FlapID:    mv.DeviceID,
				Time:      mv.CreatedAt,
			}
			if d := snap.DeviceByID(mv.DeviceID); d != nil {
				info.FlapName = d.Name
			}
			latest = &info
		}
	}
	return latest
}

// ProjectReports writes the derived per-pet activity leaves and returns
// the metric bundles for the optional sink.
func (p *Projector) ProjectReports(ctx context.Context, snap *Snapshot, caps Capabilities, now time.Time, loc *time.Location) []PetMetrics {
	var out []PetMetrics
	for i := range snap.Pets {
		pet := &snap.Pets[i]
		base, ok := snap.PetPath(pet)
		if !ok {
			continue
		}
		rep := snap.Reports[pet.ID]
		if rep == nil {
			if caps.Any() {
				p.warnings.Warn(WarnNoReport, fmt.Sprintf("%d", pet.ID),
					"no report data for pet", "pet", pet.Name)
			}
			continue
		}
		p.warnings.Clear(WarnNoReport, fmt.Sprintf("%d", pet.ID))

		h := snap.HouseholdByID(pet.HouseholdID)
		metrics := PetMetrics{Pet: pet.Name}
		if h != nil {
			metrics.Household = h.Name
		}

		if caps.HasFeeder {
			m := Consumption(rep.Feeding, now, loc)
			metrics.Feeding = &m
			p.projectConsumption(ctx, store.Join(base, "food"), m, loc, true)
		}
		if caps.HasDispenser {
			m := Consumption(rep.Drinking, now, loc)
			metrics.Drinking = &m
			p.projectConsumption(ctx, store.Join(base, "water"), m, loc, false)
		}
		if caps.HasFlap {
			o := TimeOutside(rep.Movement, now, loc)
			metrics.Outside = &o
			tb := store.Join(base, "time_outside")
			p.writeChanged(ctx, store.Join(tb, "count"), o.Count)
			p.writeChanged(ctx, store.Join(tb, "minutes"), int(math.Round(o.Duration/60)))

			events := snap.History[pet.HouseholdID]
			if mv := LastMovement(events, pet, snap); mv != nil {
				p.projectMovement(ctx, store.Join(base, "movement"), mv, loc)
			}
		}
		out = append(out, metrics)
	}

	if caps.HasFlap {
		p.projectUnknownMovements(ctx, snap, loc)
	}
	return out
}

func (p *Projector) projectConsumption(ctx context.Context, base string, m ConsumptionMetrics, loc *time.Location, withWeights bool) {
	p.writeChanged(ctx, store.Join(base, "count"), m.Count)
	p.writeChanged(ctx, store.Join(base, "time_spent"), int(math.Round(m.TimeSpent)))
	if !m.LastTime.IsZero() {
		p.writeChanged(ctx, store.Join(base, "last_time"), m.LastTime.In(loc).Format(time.RFC3339))
	}
	if withWeights {
		p.writeChanged(ctx, store.Join(base, "wet_weight"), round1(m.WetWeight))
		p.writeChanged(ctx, store.Join(base, "dry_weight"), round1(m.DryWeight))
	} else {
		p.writeChanged(ctx, store.Join(base, "weight"), round1(m.WetWeight+m.DryWeight))
	}
}

func (p *Projector) projectMovement(ctx context.Context, base string, mv *MovementInfo, loc *time.Location) {
	p.writeChanged(ctx, store.Join(base, "direction"), mv.Direction)
	p.writeChanged(ctx, store.Join(base, "flap"), mv.FlapName)
	p.writeChanged(ctx, store.Join(base, "time"), mv.Time.In(loc).Format(time.RFC3339))
}

// projectUnknownMovements surfaces the newest passage of an unregistered
// tag per household, under the household root.
func (p *Projector) projectUnknownMovements(ctx context.Context, snap *Snapshot, loc *time.Location) {
	for i := range snap.Households {
		h := &snap.Households[i]
		mv := LastUnknownMovement(snap.History[h.ID], snap)
		if mv == nil {
			continue
		}
		base := store.Join(h.Name, "unknown_pet")
		p.projectMovement(ctx, base, mv, loc)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
