package zone

import (
	"encoding/json"
	"fmt"
)

// Zones are persisted as {"Name", "Amount", "Image", "Rect": {"TopLeft",
// "BottomRight"}, "Depth": {"LowerLevel", "UpperLevel"}}. Readers accept
// nulls and partial objects: a point needs both X and Y, and the second
// point of a pair is only read when the first is present.

type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage) (object, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func decodeInt(raw json.RawMessage) (int, bool) {
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return 0, false
	}
	return int(*f), true
}

// PointFromJSON decodes a point, or returns nil when it is null or incomplete.
func PointFromJSON(raw json.RawMessage) *Point {
	obj, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	x, okX := decodeInt(obj["X"])
	y, okY := decodeInt(obj["Y"])
	if !okX || !okY {
		return nil
	}
	return &Point{X: x, Y: y}
}

// RectFromJSON decodes a rectangle, or returns nil when it has no top-left point.
func RectFromJSON(raw json.RawMessage) *Rect {
	obj, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	tl := PointFromJSON(obj["TopLeft"])
	if tl == nil {
		return nil
	}
	return &Rect{TopLeft: *tl, BottomRight: PointFromJSON(obj["BottomRight"])}
}

// DepthFromJSON decodes a depth calibration, or returns nil when it has no lower level.
func DepthFromJSON(raw json.RawMessage) *Depth {
	obj, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	lower := PointFromJSON(obj["LowerLevel"])
	if lower == nil {
		return nil
	}
	return &Depth{LowerLevel: *lower, UpperLevel: PointFromJSON(obj["UpperLevel"])}
}

// FromJSON decodes one zone record.
func FromJSON(raw json.RawMessage) (*Zone, error) {
	obj, ok := decodeObject(raw)
	if !ok {
		return nil, fmt.Errorf("zone record is not an object")
	}
	var name *string
	if err := json.Unmarshal(obj["Name"], &name); err != nil || name == nil || *name == "" {
		return nil, ErrMissingName
	}

	z := New(*name)
	if amount, ok := decodeInt(obj["Amount"]); ok {
		z.Amount = amount
	}
	if raw, ok := obj["Image"]; ok {
		var img *string
		if err := json.Unmarshal(raw, &img); err == nil {
			z.Image = img
		}
	}
	z.Rect = RectFromJSON(obj["Rect"])
	z.Depth = DepthFromJSON(obj["Depth"])
	return z, nil
}

// UnmarshalJSON implements json.Unmarshaler with the tolerant rules of FromJSON.
func (z *Zone) UnmarshalJSON(data []byte) error {
	decoded, err := FromJSON(data)
	if err != nil {
		return err
	}
	*z = *decoded
	return nil
}

// ListFromJSON decodes a zone list, skipping records without a name or with
// an empty one.
func ListFromJSON(data []byte) ([]*Zone, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("zone list: %w", err)
	}
	zones := make([]*Zone, 0, len(raws))
	for _, raw := range raws {
		z, err := FromJSON(raw)
		if err != nil {
			continue
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// ListToJSON encodes a zone list in the persisted format.
func ListToJSON(zones []*Zone) ([]byte, error) {
	if zones == nil {
		zones = []*Zone{}
	}
	return json.MarshalIndent(zones, "", "    ")
}
