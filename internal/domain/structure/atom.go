// Package structure reads the atom records of molecular structure files
// (PDB, PDBQT and SDF/MOL V2000).  Only what the docking pipeline needs is
// kept: atom identity and Cartesian coordinates.
package structure

import (
	"path/filepath"
	"strings"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// Format identifies a structure file format.
type Format string

const (
	FormatPDB   Format = "pdb"
	FormatPDBQT Format = "pdbqt"
	FormatSDF   Format = "sdf"
)

// Atom is a single ATOM/HETATM record, or one line of an SDF atom block.
type Atom struct {
	Serial  int
	Name    string
	Residue string
	Chain   string
	X, Y, Z float64
	Element string
}

// Coords returns the atom position as an (x, y, z) triple.
func (a Atom) Coords() [3]float64 {
	return [3]float64{a.X, a.Y, a.Z}
}

// Structure is the parsed content of a structure file.  It is not modified
// after Parse returns.
type Structure struct {
	Source string
	Format Format
	Atoms  []Atom
}

// Len returns the number of atoms.
func (s *Structure) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Atoms)
}

// Coordinates returns the positions of all atoms in file order.
func (s *Structure) Coordinates() [][3]float64 {
	if s == nil {
		return nil
	}
	out := make([][3]float64, len(s.Atoms))
	for i, a := range s.Atoms {
		out[i] = a.Coords()
	}
	return out
}

// FormatFromPath derives the format from a file name.  A trailing ".gz" is
// reported separately and stripped before the extension is examined.
func FormatFromPath(path string) (format Format, gzipped bool, err error) {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".gz") {
		gzipped = true
		name = strings.TrimSuffix(name, ".gz")
	}
	switch filepath.Ext(name) {
	case ".pdb", ".ent":
		return FormatPDB, gzipped, nil
	case ".pdbqt":
		return FormatPDBQT, gzipped, nil
	case ".sdf", ".mol":
		return FormatSDF, gzipped, nil
	}
	return "", gzipped, errors.Newf(errors.ErrCodeStructureUnsupported,
		"unsupported structure format %q", filepath.Ext(name))
}
