package repository

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// pointBytes encodes p as WKB for storage in a BYTEA column. The zero
// point encodes as NULL so unset pickup/delivery/location fields round
// trip cleanly.
func pointBytes(p orb.Point) ([]byte, error) {
	if p == (orb.Point{}) {
		return nil, nil
	}
	return wkb.Marshal(p)
}

// scanPoint decodes a BYTEA column back into an orb.Point.
func scanPoint(data []byte) (orb.Point, error) {
	if len(data) == 0 {
		return orb.Point{}, nil
	}
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return orb.Point{}, fmt.Errorf("wkb unmarshal: %w", err)
	}
	p, ok := geom.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("wkb: expected point, got %T", geom)
	}
	return p, nil
}
