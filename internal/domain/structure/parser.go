package structure

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// minAtomLine is the shortest ATOM/HETATM record that still carries the z
// coordinate (columns 47-54).
const minAtomLine = 54

// ParseFile opens path, picks the format from its extension and parses it.
// Files ending in ".gz" are decompressed on the fly.
func ParseFile(path string) (*Structure, error) {
	format, gzipped, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStructureRead, "open "+path)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStructureRead, "gunzip "+path)
		}
		defer gz.Close()
		r = gz
	}

	s, err := Parse(r, format)
	if err != nil {
		return nil, err
	}
	s.Source = path
	return s, nil
}

// Parse reads a structure of the given format from r.  A structure with no
// atoms is returned without error; callers decide whether that is fatal.
func Parse(r io.Reader, format Format) (*Structure, error) {
	var (
		atoms []Atom
		err   error
	)
	switch format {
	case FormatPDB, FormatPDBQT:
		atoms, err = parseAtomRecords(r, format)
	case FormatSDF:
		atoms, err = parseMolBlock(r)
	default:
		return nil, errors.Newf(errors.ErrCodeStructureUnsupported, "unsupported structure format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return &Structure{Format: format, Atoms: atoms}, nil
}

// parseAtomRecords reads ATOM and HETATM records from a PDB or PDBQT stream.
// Only the first model is read when MODEL/ENDMDL blocks are present.
func parseAtomRecords(r io.Reader, format Format) ([]Atom, error) {
	var atoms []Atom
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.HasPrefix(line, "ENDMDL") {
			break
		}
		if !strings.HasPrefix(line, "ATOM  ") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		if len(line) < minAtomLine {
			return nil, parseError(lineNo, "atom record truncated to %d columns", len(line))
		}

		atom := Atom{
			Name:    strings.TrimSpace(line[12:16]),
			Residue: strings.TrimSpace(line[17:20]),
			Chain:   strings.TrimSpace(line[21:22]),
		}
		if serial, err := strconv.Atoi(strings.TrimSpace(line[6:11])); err == nil {
			atom.Serial = serial
		}

		var coords [3]float64
		for i, col := range [3][2]int{{30, 38}, {38, 46}, {46, 54}} {
			field := strings.TrimSpace(line[col[0]:col[1]])
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, parseError(lineNo, "bad coordinate %q", field)
			}
			coords[i] = v
		}
		atom.X, atom.Y, atom.Z = coords[0], coords[1], coords[2]
		atom.Element = elementColumn(line, format)

		atoms = append(atoms, atom)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStructureRead, "read atom records")
	}
	return atoms, nil
}

// elementColumn returns the element symbol (PDB columns 77-78) or the
// AutoDock atom type (PDBQT columns 78-79).
func elementColumn(line string, format Format) string {
	start, end := 76, 78
	if format == FormatPDBQT {
		start, end = 77, 79
	}
	if len(line) <= start {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[start:end])
}

// parseMolBlock reads the atom block of the first record of a V2000 MOL/SDF
// stream.  Lines 1-3 are the header; line 4 is the counts line.
func parseMolBlock(r io.Reader) ([]Atom, error) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		lineNo++
		return scanner.Text(), true
	}

	for i := 0; i < 3; i++ {
		if _, ok := next(); !ok {
			return nil, readOrTruncated(scanner, lineNo, "missing molfile header")
		}
	}

	counts, ok := next()
	if !ok {
		return nil, readOrTruncated(scanner, lineNo, "missing counts line")
	}
	if strings.Contains(counts, "V3000") {
		return nil, errors.New(errors.ErrCodeStructureUnsupported, "V3000 molfiles are not supported")
	}
	if len(counts) < 3 {
		return nil, parseError(lineNo, "counts line too short")
	}
	n, err := strconv.Atoi(strings.TrimSpace(counts[0:3]))
	if err != nil || n < 0 {
		return nil, parseError(lineNo, "bad atom count %q", counts[0:3])
	}

	atoms := make([]Atom, 0, n)
	for i := 0; i < n; i++ {
		line, ok := next()
		if !ok {
			return nil, readOrTruncated(scanner, lineNo, fmt.Sprintf("expected %d atoms, found %d", n, i))
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, parseError(lineNo, "atom line has %d fields", len(fields))
		}
		var coords [3]float64
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(fields[j], 64)
			if err != nil {
				return nil, parseError(lineNo, "bad coordinate %q", fields[j])
			}
			coords[j] = v
		}
		atoms = append(atoms, Atom{
			Serial:  i + 1,
			Name:    fields[3],
			X:       coords[0],
			Y:       coords[1],
			Z:       coords[2],
			Element: fields[3],
		})
	}
	return atoms, nil
}

func readOrTruncated(scanner *bufio.Scanner, lineNo int, msg string) error {
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStructureRead, "read molfile")
	}
	return parseError(lineNo, "%s", msg)
}

func parseError(lineNo int, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeStructureParse, "line %d: %s", lineNo, fmt.Sprintf(format, args...))
}
