package model

import "encoding/json"

// UnmarshalJSON accepts both vendor representations of a curfew: cat
// flaps return an array of slots, pet flaps a single bare object.
func (c *Curfew) UnmarshalJSON(data []byte) error {
	var slots []CurfewSlot
	if err := json.Unmarshal(data, &slots); err == nil {
		*c = slots
		return nil
	}

	var single CurfewSlot
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*c = Curfew{single}
	return nil
}

// MarshalJSON always emits the list form; pet-flap writes unwrap the
// single slot explicitly at the API boundary.
func (c Curfew) MarshalJSON() ([]byte, error) {
	return json.Marshal([]CurfewSlot(c))
}
