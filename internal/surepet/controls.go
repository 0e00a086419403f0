package surepet

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/petsync/sureflap-sync/pkg/model"
)

// Control writes. None of these are retried: the vendor applies them
// immediately and a duplicate write can flap hardware state.

// SetLockMode sets a flap's lock mode (0..3).
func (c *Client) SetLockMode(ctx context.Context, deviceID int64, mode int) error {
	path := fmt.Sprintf("/api/device/%d/control", deviceID)
	if err := c.do(ctx, http.MethodPut, path, map[string]int{"locking": mode}, nil, true); err != nil {
		return fmt.Errorf("setting lock mode for device %d: %w", deviceID, err)
	}
	return nil
}

// SetLEDMode sets a hub's LED mode (0, 1 or 4).
func (c *Client) SetLEDMode(ctx context.Context, deviceID int64, mode int) error {
	path := fmt.Sprintf("/api/device/%d/control", deviceID)
	if err := c.do(ctx, http.MethodPut, path, map[string]int{"led_mode": mode}, nil, true); err != nil {
		return fmt.Errorf("setting led mode for device %d: %w", deviceID, err)
	}
	return nil
}

// SetCloseDelay sets a feeder's lid close delay in seconds (0, 4 or 20).
func (c *Client) SetCloseDelay(ctx context.Context, deviceID int64, delay int) error {
	path := fmt.Sprintf("/api/device/%d/control", deviceID)
	body := map[string]any{"lid": map[string]int{"close_delay": delay}}
	if err := c.do(ctx, http.MethodPut, path, body, nil, true); err != nil {
		return fmt.Errorf("setting close delay for device %d: %w", deviceID, err)
	}
	return nil
}

// SetPetType sets the access profile for a tag at a flap (2 or 3).
func (c *Client) SetPetType(ctx context.Context, deviceID, tagID int64, profile int) error {
	path := fmt.Sprintf("/api/device/%d/tag/%d", deviceID, tagID)
	if err := c.do(ctx, http.MethodPut, path, map[string]int{"profile": profile}, nil, true); err != nil {
		return fmt.Errorf("setting pet type for tag %d at device %d: %w", tagID, deviceID, err)
	}
	return nil
}

// SetPetLocation overrides where the vendor believes a pet is.
func (c *Client) SetPetLocation(ctx context.Context, petID int64, where int, since time.Time) error {
	path := fmt.Sprintf("/api/pet/%d/position", petID)
	body := map[string]any{
		"where": where,
		"since": since.UTC().Format(time.RFC3339),
	}
	if err := c.do(ctx, http.MethodPost, path, body, nil, true); err != nil {
		return fmt.Errorf("setting location for pet %d: %w", petID, err)
	}
	return nil
}

// SetCurfew replaces a cat flap's curfew slot list. Times must already
// be UTC.
func (c *Client) SetCurfew(ctx context.Context, deviceID int64, curfew model.Curfew) error {
	path := fmt.Sprintf("/api/device/%d/control", deviceID)
	if err := c.do(ctx, http.MethodPut, path, map[string]any{"curfew": curfew}, nil, true); err != nil {
		return fmt.Errorf("setting curfew for device %d: %w", deviceID, err)
	}
	return nil
}

// SetCurfewSingle replaces a pet flap's curfew. The pet flap firmware
// expects a bare object, not a one-element list.
func (c *Client) SetCurfewSingle(ctx context.Context, deviceID int64, slot model.CurfewSlot) error {
	path := fmt.Sprintf("/api/device/%d/control", deviceID)
	if err := c.do(ctx, http.MethodPut, path, map[string]any{"curfew": slot}, nil, true); err != nil {
		return fmt.Errorf("setting curfew for device %d: %w", deviceID, err)
	}
	return nil
}

// SetPetAssignment assigns or removes a tag at a device.
func (c *Client) SetPetAssignment(ctx context.Context, deviceID, tagID int64, assigned bool) error {
	path := fmt.Sprintf("/api/device/%d/tag/%d", deviceID, tagID)
	method := http.MethodPut
	if !assigned {
		method = http.MethodDelete
	}
	if err := c.do(ctx, method, path, nil, nil, true); err != nil {
		return fmt.Errorf("setting assignment for tag %d at device %d: %w", tagID, deviceID, err)
	}
	return nil
}
