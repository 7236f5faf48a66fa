package layer

import (
	"encoding/json"
	"errors"
)

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point is one row of node data.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Tooltip   string  `json:"tooltip,omitempty"`
}

// Edge is one relationship between two located nodes.
type Edge struct {
	Start   LatLng `json:"start"`
	End     LatLng `json:"end"`
	Tooltip string `json:"tooltip,omitempty"`
}

// Bounds is the minimal axis-aligned box containing all points. A nil
// *Bounds is the empty box.
type Bounds struct {
	SouthWest LatLng
	NorthEast LatLng
}

// MarshalJSON emits the [[minLat,minLon],[maxLat,maxLon]] form map widgets
// expect.
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2][2]float64{
		{b.SouthWest.Latitude, b.SouthWest.Longitude},
		{b.NorthEast.Latitude, b.NorthEast.Longitude},
	})
}

func (b *Bounds) UnmarshalJSON(raw []byte) error {
	var pair [][]float64
	if err := json.Unmarshal(raw, &pair); err != nil {
		return err
	}
	if len(pair) == 0 {
		*b = Bounds{}
		return nil
	}
	if len(pair) != 2 || len(pair[0]) != 2 || len(pair[1]) != 2 {
		return errors.New("bounds must be [[minLat,minLon],[maxLat,maxLon]]")
	}
	b.SouthWest = LatLng{Latitude: pair[0][0], Longitude: pair[0][1]}
	b.NorthEast = LatLng{Latitude: pair[1][0], Longitude: pair[1][1]}
	return nil
}
