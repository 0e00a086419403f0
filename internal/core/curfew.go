package core

import (
	"fmt"
	"regexp"
	"time"

	"github.com/petsync/sureflap-sync/pkg/model"
)

// hhmmPattern accepts 00-23 hours and 00-59 minutes.
var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

const hhmmLayout = "15:04"

// ValidHHMM reports whether s is a well-formed HH:MM time of day.
func ValidHHMM(s string) bool {
	return hhmmPattern.MatchString(s)
}

// convertHHMM re-anchors an HH:MM wall time from one zone to another,
// using today's date for the offset.
func convertHHMM(s string, from, to *time.Location) (string, error) {
	t, err := time.ParseInLocation(hhmmLayout, s, from)
	if err != nil {
		return "", fmt.Errorf("parsing time %q: %w", s, err)
	}
	now := time.Now().In(from)
	anchored := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, from)
	return anchored.In(to).Format(hhmmLayout), nil
}

// curfewConvert maps every slot's times between zones, leaving the
// enabled flags untouched. Malformed times pass through unchanged; the
// dispatcher validates before any write, and on the read side the raw
// value is better than none.
func curfewConvert(c model.Curfew, from, to *time.Location) model.Curfew {
	if len(c) == 0 {
		return c
	}
	out := make(model.Curfew, len(c))
	for i, slot := range c {
		out[i] = slot
		if lock, err := convertHHMM(slot.LockTime, from, to); err == nil {
			out[i].LockTime = lock
		}
		if unlock, err := convertHHMM(slot.UnlockTime, from, to); err == nil {
			out[i].UnlockTime = unlock
		}
	}
	return out
}

// ValidateCurfew checks slot count and time formats for a flap type.
func ValidateCurfew(c model.Curfew, device *model.Device) error {
	maxSlots := device.MaxCurfewSlots()
	if maxSlots == 0 {
		return fmt.Errorf("device %s does not support curfews", device.Name)
	}
	if len(c) == 0 {
		return fmt.Errorf("curfew must contain at least one entry")
	}
	if len(c) > maxSlots {
		return fmt.Errorf("curfew has %d entries, device %s supports at most %d", len(c), device.Name, maxSlots)
	}
	for i, slot := range c {
		if !ValidHHMM(slot.LockTime) {
			return fmt.Errorf("curfew entry %d: invalid lock_time %q", i, slot.LockTime)
		}
		if !ValidHHMM(slot.UnlockTime) {
			return fmt.Errorf("curfew entry %d: invalid unlock_time %q", i, slot.UnlockTime)
		}
	}
	return nil
}

// IsCurfewActive reports whether any enabled slot covers the given wall
// clock time. Windows may wrap midnight: lock 22:00 / unlock 07:00 is
// active at 23:00 and at 06:00.
func IsCurfewActive(c model.Curfew, now time.Time) bool {
	minutes := now.Hour()*60 + now.Minute()
	for _, slot := range c {
		if !slot.Enabled {
			continue
		}
		lock, err1 := parseMinutes(slot.LockTime)
		unlock, err2 := parseMinutes(slot.UnlockTime)
		if err1 != nil || err2 != nil {
			continue
		}
		if lock <= unlock {
			if minutes >= lock && minutes < unlock {
				return true
			}
		} else {
			if minutes >= lock || minutes < unlock {
				return true
			}
		}
	}
	return false
}

func parseMinutes(s string) (int, error) {
	t, err := time.Parse(hhmmLayout, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
