package models

import (
	"encoding/json"
	"strconv"
)

// AllItems is the SKU value that selects every item of an order.
const AllItems = "all"

// Command is a locate request for one order, optionally narrowed to a SKU.
type Command struct {
	Kind        TriggerKind `json:"kind,omitempty"`
	OrderNumber string      `json:"orderNumber" validate:"required"`
	ItemSku     string      `json:"itemSku" validate:"required"`
	Quantity    string      `json:"quantity"`
	Label       string      `json:"label,omitempty"`
}

// Device command verbs.
const (
	DeviceFlash = "flash"
	DeviceKill  = "kill"
)

// DeviceCommand is one entry of a device-control batch. Display lines are
// rendered as line1..lineN on the wire.
type DeviceCommand struct {
	Command  string
	Location string
	Color    string
	Seconds  int
	Quantity int
	Lines    []string
	Barcode  string
	Sound    string
	Nonce    string
}

// MarshalJSON renders the flat wire object the device API expects.
func (d DeviceCommand) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"command":  d.Command,
		"location": d.Location,
		"nonce":    d.Nonce,
	}
	if d.Command == DeviceKill {
		return json.Marshal(out)
	}
	out["color"] = d.Color
	out["seconds"] = d.Seconds
	out["quantity"] = d.Quantity
	for i, line := range d.Lines {
		out["line"+strconv.Itoa(i+1)] = line
	}
	if d.Barcode != "" {
		out["barcode"] = d.Barcode
	}
	if d.Sound != "" {
		out["sound"] = d.Sound
	}
	return json.Marshal(out)
}
