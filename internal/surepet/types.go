package surepet

import (
	"fmt"

	"github.com/petsync/sureflap-sync/pkg/model"
)

// wireDevice mirrors the vendor device payload. It exists because the
// status.version field is a nested object that gets flattened to a
// firmware string, and because absent blocks should stay nil pointers.
type wireDevice struct {
	ID             int64           `json:"id"`
	ProductID      model.ProductID `json:"product_id"`
	HouseholdID    int64           `json:"household_id"`
	Name           string          `json:"name"`
	ParentDeviceID *int64          `json:"parent_device_id"`
	Status         wireStatus      `json:"status"`
	Control        wireControl     `json:"control"`
	Tags           []model.Tag     `json:"tags"`
}

type wireStatus struct {
	Online  bool           `json:"online"`
	Battery float64        `json:"battery"`
	Locking *model.Locking `json:"locking"`
	Signal  *model.Signal  `json:"signal"`
	Version *wireVersion   `json:"version"`
	LEDMode *int           `json:"led_mode"`
	Bowls   []model.Bowl   `json:"bowl_status"`
}

type wireVersion struct {
	Device struct {
		Hardware any `json:"hardware"`
		Firmware any `json:"firmware"`
	} `json:"device"`
}

type wireControl struct {
	Curfew model.Curfew       `json:"curfew"`
	Lid    *model.Lid         `json:"lid"`
	Bowls  *model.BowlControl `json:"bowls"`
}

func (w wireDevice) toModel() model.Device {
	d := model.Device{
		ID:             w.ID,
		ProductID:      w.ProductID,
		HouseholdID:    w.HouseholdID,
		Name:           w.Name,
		ParentDeviceID: w.ParentDeviceID,
		Status: model.DeviceStatus{
			Online:  w.Status.Online,
			Battery: w.Status.Battery,
			Locking: w.Status.Locking,
			Signal:  w.Status.Signal,
			LEDMode: w.Status.LEDMode,
			Bowls:   w.Status.Bowls,
		},
		Control: model.DeviceControl{
			Curfew: w.Control.Curfew,
			Lid:    w.Control.Lid,
			Bowls:  w.Control.Bowls,
		},
		Tags: w.Tags,
	}
	if w.Status.Version != nil && w.Status.Version.Device.Firmware != nil {
		d.Status.Version = fmt.Sprint(w.Status.Version.Device.Firmware)
	}
	return d
}
