// Package staging manages the per-run working directory.  Every file a run
// reads or writes lives under <root>/<run-id>/ with a fixed name, so runs
// never collide and a failed run can be inspected in place.
package staging

import (
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// Fixed file names inside a run directory.
const (
	LigandConvertedName    = "ligand.pdbqt"
	ReceptorPreparedName   = "receptor.pdbqt"
	DockedOutputName       = "docked_output.pdbqt"
	DockingLogName         = "docking_log.txt"
	PosesDir               = "poses"
	PosePrefix             = "pose_"
	ComplexesDir           = "complexes"
	ComplexesArchiveName   = "complexes.zip"
	TopComplexBaseName     = "top_complex"
	ligandUploadBaseName   = "upload_ligand"
	receptorUploadBaseName = "upload_receptor"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// ValidateRunID rejects identifiers that could escape the staging root.
func ValidateRunID(id string) error {
	if !runIDPattern.MatchString(id) || strings.Contains(id, "..") {
		return errors.Newf(errors.ErrCodeBadRequest, "invalid run id %q", id)
	}
	return nil
}

// Workspace is the directory of one run.
type Workspace struct {
	root  string
	runID string
	dir   string
	keep  bool
}

// Open creates <root>/<runID>.  An empty runID draws a new one.  Reopening an
// existing run id discards the outputs of the previous attempt so poses and
// complexes from it cannot leak into this one.  When keep is false, Cleanup
// removes the directory.
func Open(root, runID string, keep bool) (*Workspace, error) {
	if runID == "" {
		runID = NewRunID()
	}
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStagingFailed, "resolve staging root")
	}
	ws := &Workspace{root: absRoot, runID: runID, dir: filepath.Join(absRoot, runID), keep: keep}
	if err := ws.reset(); err != nil {
		return nil, err
	}
	for _, d := range []string{ws.dir, ws.PosesDir(), ws.ComplexesDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStagingFailed, "create "+d)
		}
	}
	return ws, nil
}

// reset removes every generated file of an earlier run in the same
// directory.  Staged uploads are overwritten by the next Stage call.
func (w *Workspace) reset() error {
	stale := []string{
		w.PosesDir(),
		w.ComplexesDir(),
		w.LigandConverted(),
		w.ReceptorPrepared(),
		w.DockedOutput(),
		w.DockingLog(),
		w.ComplexesArchive(),
	}
	tops, err := filepath.Glob(w.Path(TopComplexBaseName + ".*"))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStagingFailed, "glob top complex")
	}
	for _, p := range append(stale, tops...) {
		if err := os.RemoveAll(p); err != nil {
			return errors.Wrap(err, errors.ErrCodeStagingFailed, "remove "+p)
		}
	}
	return nil
}

// RunID returns the run identifier.
func (w *Workspace) RunID() string { return w.runID }

// Dir returns the absolute run directory.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the run directory.
func (w *Workspace) Path(name string) string { return filepath.Join(w.dir, name) }

func (w *Workspace) LigandConverted() string  { return w.Path(LigandConvertedName) }
func (w *Workspace) ReceptorPrepared() string { return w.Path(ReceptorPreparedName) }
func (w *Workspace) DockedOutput() string     { return w.Path(DockedOutputName) }
func (w *Workspace) DockingLog() string       { return w.Path(DockingLogName) }
func (w *Workspace) PosesDir() string         { return w.Path(PosesDir) }
func (w *Workspace) ComplexesDir() string     { return w.Path(ComplexesDir) }
func (w *Workspace) ComplexesArchive() string { return w.Path(ComplexesArchiveName) }

// PosePrefix is the prefix handed to the splitter.
func (w *Workspace) PosePrefix() string {
	return filepath.Join(w.PosesDir(), PosePrefix)
}

// Complex returns the path of the i-th (1-based) combined structure.
func (w *Workspace) Complex(i int) string {
	return filepath.Join(w.ComplexesDir(), "complex_"+strconv.Itoa(i)+".pdbqt")
}

// TopComplex returns the path of the converted top pose.
func (w *Workspace) TopComplex(format string) string {
	return w.Path(TopComplexBaseName + "." + strings.TrimPrefix(format, "."))
}

// StageLigand copies an uploaded ligand into the run as upload_ligand<ext>.
func (w *Workspace) StageLigand(src string) (string, error) {
	return w.stage(src, ligandUploadBaseName)
}

// StageReceptor copies an uploaded receptor into the run as upload_receptor<ext>.
func (w *Workspace) StageReceptor(src string) (string, error) {
	return w.stage(src, receptorUploadBaseName)
}

// stage keeps the upload's extension (including a trailing .gz) so that
// format detection still works on the copy.
func (w *Workspace) stage(src, base string) (string, error) {
	ext := filepath.Ext(src)
	if strings.EqualFold(ext, ".gz") {
		ext = filepath.Ext(strings.TrimSuffix(src, ext)) + ext
	}
	dst := w.Path(base + strings.ToLower(ext))
	if err := copyFile(src, dst); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStagingFailed, "stage "+src)
	}
	return dst, nil
}

// PoseFiles lists the splitter output sorted lexicographically by name.  The
// splitter zero-pads ordinals to a common width, so lexical order is pose
// order.
func (w *Workspace) PoseFiles() ([]string, error) {
	matches, err := filepath.Glob(w.PosePrefix() + "*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStagingFailed, "glob poses")
	}
	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})
	return matches, nil
}

// WriteComplex writes receptor text followed by pose text to dst.
func WriteComplex(dst string, receptor []byte, posePath string) error {
	pose, err := os.ReadFile(posePath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStagingFailed, "read pose "+posePath)
	}
	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStagingFailed, "create "+dst)
	}
	if _, err := f.Write(receptor); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeStagingFailed, "write "+dst)
	}
	if len(receptor) > 0 && receptor[len(receptor)-1] != '\n' {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			f.Close()
			return errors.Wrap(err, errors.ErrCodeStagingFailed, "write "+dst)
		}
	}
	if _, err := f.Write(pose); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeStagingFailed, "write "+dst)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStagingFailed, "close "+dst)
	}
	return nil
}

// ReadText returns the contents of path, gunzipping it when the name ends
// in .gz.
func ReadText(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStagingFailed, "open "+path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStagingFailed, "gunzip "+path)
		}
		defer gz.Close()
		r = gz
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStagingFailed, "read "+path)
	}
	return data, nil
}

// Archive bundles files into a zip at dst, storing each under its base name.
func Archive(dst string, files []string) error {
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "create "+dst)
	}
	zw := zip.NewWriter(out)
	for _, p := range files {
		if err := addToZip(zw, p); err != nil {
			zw.Close()
			out.Close()
			return errors.Wrap(err, errors.ErrCodeArchiveFailed, "add "+p)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "finish "+dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "close "+dst)
	}
	return nil
}

func addToZip(zw *zip.Writer, p string) error {
	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(p)
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// Cleanup removes the run directory unless the workspace was opened with
// keep set.
func (w *Workspace) Cleanup() error {
	if w.keep {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return errors.Wrap(err, errors.ErrCodeStagingFailed, "remove "+w.dir)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
