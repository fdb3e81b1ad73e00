package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/berfenger/serial2govee/internal/core/domain"
)

type ListingShape int

const (
	ShapeUnrecognized ListingShape = iota
	ShapeNestedData                // {"data": {"devices": [...]}}
	ShapeDevicesField              // {"devices": [...]}
	ShapeDataList                  // {"data": [...]}
	ShapeBareList                  // [...]
)

func (s ListingShape) String() string {
	switch s {
	case ShapeNestedData:
		return "data.devices"
	case ShapeDevicesField:
		return "devices"
	case ShapeDataList:
		return "data"
	case ShapeBareList:
		return "list"
	default:
		return "unrecognized"
	}
}

// DeviceListing is a decoded device listing body. Detail describes the body
// when Shape is ShapeUnrecognized.
type DeviceListing struct {
	Shape   ListingShape
	Records []any
	Detail  string
}

type listingPattern struct {
	shape ListingShape
	match func(body any) ([]any, bool)
}

// tried in order, first match wins
var listingPatterns = []listingPattern{
	{shape: ShapeNestedData, match: matchNestedData},
	{shape: ShapeDevicesField, match: matchDevicesField},
	{shape: ShapeDataList, match: matchDataList},
	{shape: ShapeBareList, match: matchBareList},
}

func DecodeDeviceListing(body []byte) (DeviceListing, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return DeviceListing{}, fmt.Errorf("decoding device listing: %w", err)
	}

	for _, p := range listingPatterns {
		if records, ok := p.match(value); ok {
			return DeviceListing{Shape: p.shape, Records: records}, nil
		}
	}
	return DeviceListing{Shape: ShapeUnrecognized, Detail: describeShape(value)}, nil
}

// DevicesFromRecords extracts devices from raw listing records. Records that are
// not objects or lack an identifier or a model are dropped and counted.
func DevicesFromRecords(records []any) ([]domain.Device, int) {
	var devices []domain.Device
	dropped := 0
	for _, record := range records {
		obj, ok := record.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		id := firstValue(obj, "device", "deviceId", "id")
		model := firstValue(obj, "model", "sku", "productModel")
		if id == "" || model == "" {
			dropped++
			continue
		}
		devices = append(devices, domain.Device{ID: id, Model: model})
	}
	return devices, dropped
}

func matchNestedData(body any) ([]any, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	data, ok := obj["data"].(map[string]any)
	if !ok {
		return nil, false
	}
	devices, present := data["devices"]
	if !present {
		return nil, false
	}
	if devices == nil {
		return nil, true
	}
	list, ok := devices.([]any)
	return list, ok
}

func matchDevicesField(body any) ([]any, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := obj["devices"].([]any)
	return list, ok
}

func matchDataList(body any) ([]any, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := obj["data"].([]any)
	return list, ok
}

func matchBareList(body any) ([]any, bool) {
	list, ok := body.([]any)
	return list, ok
}

func describeShape(body any) string {
	switch v := body.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("object with keys %v", keys)
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func firstValue(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			if v != "" && v != "0" {
				return v.String()
			}
		}
	}
	return ""
}
