// Package docking holds the pure domain logic of a docking run: search-box
// derivation, the run stage machine, score parsing and pose/score pairing.
// Nothing here touches the filesystem or spawns processes.
package docking

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/turtacn/DockPipe/internal/domain/structure"
	"github.com/turtacn/DockPipe/pkg/errors"
)

// DefaultPadding is added to the atom extent on every axis.
const DefaultPadding = 10.0

// Vec3 is an (x, y, z) triple in Ångström.
type Vec3 [3]float64

func (v Vec3) String() string {
	return fmt.Sprintf("%.3f,%.3f,%.3f", v[0], v[1], v[2])
}

// ParseVec3 parses "x,y,z" as typed on the command line.
func ParseVec3(s string) (Vec3, error) {
	var v Vec3
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, errors.Newf(errors.ErrCodeInvalidBox, "expected x,y,z, got %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return v, errors.Newf(errors.ErrCodeInvalidBox, "bad component %q in %q", p, s)
		}
		v[i] = f
	}
	return v, nil
}

// SearchBox is the volume the docking engine searches.  For an estimated
// box, Size[a] ≥ extent[a] + padding on every axis.
type SearchBox struct {
	Center Vec3 `json:"center"`
	Size   Vec3 `json:"size"`
}

// Validate rejects non-finite components and non-positive sizes.
func (b SearchBox) Validate() error {
	for a := 0; a < 3; a++ {
		if !finite(b.Center[a]) || !finite(b.Size[a]) {
			return errors.Newf(errors.ErrCodeInvalidBox, "non-finite box component on axis %d", a)
		}
		if b.Size[a] <= 0 {
			return errors.Newf(errors.ErrCodeInvalidBox, "box size on axis %d must be > 0, got %g", a, b.Size[a])
		}
	}
	return nil
}

// ManualBox builds a box from operator-supplied center and size.
func ManualBox(center, size Vec3) (SearchBox, error) {
	b := SearchBox{Center: center, Size: size}
	if err := b.Validate(); err != nil {
		return SearchBox{}, err
	}
	return b, nil
}

// EstimateBox derives a search box from the atoms of s.  The center is the
// per-axis arithmetic mean and the size the per-axis range plus padding.
func EstimateBox(s *structure.Structure, padding float64) (SearchBox, error) {
	if s.Len() == 0 {
		src := "structure"
		if s != nil && s.Source != "" {
			src = s.Source
		}
		return SearchBox{}, errors.New(errors.ErrCodeEmptyStructure, "no atoms to bound").WithDetail(src)
	}
	return EstimateBoxFromCoords(s.Coordinates(), padding)
}

// EstimateBoxFromCoords is EstimateBox over raw coordinates.
func EstimateBoxFromCoords(coords [][3]float64, padding float64) (SearchBox, error) {
	if len(coords) == 0 {
		return SearchBox{}, errors.New(errors.ErrCodeEmptyStructure, "no atoms to bound")
	}
	if padding < 0 || !finite(padding) {
		return SearchBox{}, errors.Newf(errors.ErrCodeInvalidBox, "padding must be a finite value ≥ 0, got %g", padding)
	}

	var (
		lo, hi = coords[0], coords[0]
		sum    [3]float64
	)
	for _, c := range coords {
		for a := 0; a < 3; a++ {
			if !finite(c[a]) {
				return SearchBox{}, errors.Newf(errors.ErrCodeInvalidBox, "non-finite coordinate on axis %d", a)
			}
			lo[a] = math.Min(lo[a], c[a])
			hi[a] = math.Max(hi[a], c[a])
			sum[a] += c[a]
		}
	}

	n := float64(len(coords))
	var box SearchBox
	for a := 0; a < 3; a++ {
		box.Center[a] = sum[a] / n
		box.Size[a] = (hi[a] - lo[a]) + padding
	}
	return box, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
