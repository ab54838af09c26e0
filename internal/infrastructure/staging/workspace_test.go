package staging

import (
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/DockPipe/pkg/errors"
)

func openWorkspace(t *testing.T, keep bool) *Workspace {
	t.Helper()
	ws, err := Open(t.TempDir(), "", keep)
	require.NoError(t, err)
	return ws
}

func TestOpen_GeneratesRunID(t *testing.T) {
	ws := openWorkspace(t, true)
	_, err := uuid.Parse(ws.RunID())
	assert.NoError(t, err)
	assert.DirExists(t, ws.Dir())
	assert.DirExists(t, ws.PosesDir())
	assert.DirExists(t, ws.ComplexesDir())
}

func TestOpen_ExplicitRunID(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root, "batch-7.ligand_12", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "batch-7.ligand_12"), ws.Dir())
}

func TestOpen_RejectsUnsafeRunID(t *testing.T) {
	for _, id := range []string{"../escape", "a/b", ".hidden", "a..b", "with space"} {
		_, err := Open(t.TempDir(), id, true)
		assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest), id)
	}
}

func TestOpen_ReusedRunIDDropsPreviousOutputs(t *testing.T) {
	root := t.TempDir()
	first, err := Open(root, "run-1", true)
	require.NoError(t, err)
	upload, err := first.StageLigand(writeTemp(t, "ligand.sdf", "ligand"))
	require.NoError(t, err)
	for _, p := range []string{
		filepath.Join(first.PosesDir(), "pose_1.pdbqt"),
		filepath.Join(first.PosesDir(), "pose_2.pdbqt"),
		first.Complex(1),
		first.LigandConverted(),
		first.DockingLog(),
		first.ComplexesArchive(),
		first.TopComplex("pdb"),
	} {
		require.NoError(t, os.WriteFile(p, []byte("old"), 0o644))
	}

	second, err := Open(root, "run-1", true)
	require.NoError(t, err)
	assert.Equal(t, first.Dir(), second.Dir())

	poses, err := second.PoseFiles()
	require.NoError(t, err)
	assert.Empty(t, poses)
	assert.DirExists(t, second.PosesDir())
	assert.DirExists(t, second.ComplexesDir())
	assert.NoFileExists(t, second.Complex(1))
	assert.NoFileExists(t, second.LigandConverted())
	assert.NoFileExists(t, second.DockingLog())
	assert.NoFileExists(t, second.ComplexesArchive())
	assert.NoFileExists(t, second.TopComplex("pdb"))
	assert.FileExists(t, upload)
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestPaths(t *testing.T) {
	ws := openWorkspace(t, true)
	assert.Equal(t, filepath.Join(ws.Dir(), "ligand.pdbqt"), ws.LigandConverted())
	assert.Equal(t, filepath.Join(ws.Dir(), "receptor.pdbqt"), ws.ReceptorPrepared())
	assert.Equal(t, filepath.Join(ws.Dir(), "docked_output.pdbqt"), ws.DockedOutput())
	assert.Equal(t, filepath.Join(ws.Dir(), "docking_log.txt"), ws.DockingLog())
	assert.Equal(t, filepath.Join(ws.Dir(), "poses", "pose_"), ws.PosePrefix())
	assert.Equal(t, filepath.Join(ws.Dir(), "complexes", "complex_3.pdbqt"), ws.Complex(3))
	assert.Equal(t, filepath.Join(ws.Dir(), "complexes.zip"), ws.ComplexesArchive())
	assert.Equal(t, filepath.Join(ws.Dir(), "top_complex.pdb"), ws.TopComplex("pdb"))
	assert.Equal(t, filepath.Join(ws.Dir(), "top_complex.mol2"), ws.TopComplex(".mol2"))
}

func TestStageUploads(t *testing.T) {
	src := t.TempDir()
	lig := filepath.Join(src, "Aspirin.SDF")
	rec := filepath.Join(src, "1abc.pdb.gz")
	require.NoError(t, os.WriteFile(lig, []byte("ligand"), 0o644))
	require.NoError(t, os.WriteFile(rec, []byte("receptor"), 0o644))

	ws := openWorkspace(t, true)
	gotLig, err := ws.StageLigand(lig)
	require.NoError(t, err)
	assert.Equal(t, ws.Path("upload_ligand.sdf"), gotLig)

	gotRec, err := ws.StageReceptor(rec)
	require.NoError(t, err)
	assert.Equal(t, ws.Path("upload_receptor.pdb.gz"), gotRec)

	data, err := os.ReadFile(gotRec)
	require.NoError(t, err)
	assert.Equal(t, "receptor", string(data))

	_, err = ws.StageLigand(filepath.Join(src, "missing.sdf"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeStagingFailed))
}

func TestPoseFiles_SortedLexicographically(t *testing.T) {
	ws := openWorkspace(t, true)
	for _, name := range []string{"pose_3.pdbqt", "pose_1.pdbqt", "pose_2.pdbqt", "other.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(ws.PosesDir(), name), nil, 0o644))
	}

	files, err := ws.PoseFiles()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "pose_1.pdbqt", filepath.Base(files[0]))
	assert.Equal(t, "pose_2.pdbqt", filepath.Base(files[1]))
	assert.Equal(t, "pose_3.pdbqt", filepath.Base(files[2]))
}

func TestPoseFiles_Empty(t *testing.T) {
	files, err := openWorkspace(t, true).PoseFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteComplex(t *testing.T) {
	dir := t.TempDir()
	pose := filepath.Join(dir, "pose_1.pdbqt")
	require.NoError(t, os.WriteFile(pose, []byte("MODEL 1\nENDMDL\n"), 0o644))

	dst := filepath.Join(dir, "complex_1.pdbqt")
	require.NoError(t, WriteComplex(dst, []byte("ATOM receptor"), pose))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "ATOM receptor\nMODEL 1\nENDMDL\n", string(data))

	err = WriteComplex(dst, nil, filepath.Join(dir, "missing"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeStagingFailed))
}

func TestReadText(t *testing.T) {
	plain := writeTemp(t, "receptor.pdb", "ATOM plain\n")
	data, err := ReadText(plain)
	require.NoError(t, err)
	assert.Equal(t, "ATOM plain\n", string(data))

	gzPath := filepath.Join(t.TempDir(), "receptor.pdb.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte("ATOM gzipped\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	data, err = ReadText(gzPath)
	require.NoError(t, err)
	assert.Equal(t, "ATOM gzipped\n", string(data))

	_, err = ReadText(filepath.Join(t.TempDir(), "missing.pdb"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeStagingFailed))

	_, err = ReadText(writeTemp(t, "broken.pdb.gz", "not gzip"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeStagingFailed))
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i, body := range []string{"one", "two"} {
		p := filepath.Join(dir, "complex_"+string(rune('1'+i))+".pdbqt")
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		files = append(files, p)
	}

	dst := filepath.Join(dir, "complexes.zip")
	require.NoError(t, Archive(dst, files))

	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 2)
	assert.Equal(t, "complex_1.pdbqt", zr.File[0].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "two", string(body))

	err = Archive(filepath.Join(dir, "bad.zip"), []string{filepath.Join(dir, "missing")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeArchiveFailed))
}

func TestCleanup(t *testing.T) {
	kept := openWorkspace(t, true)
	require.NoError(t, kept.Cleanup())
	assert.DirExists(t, kept.Dir())

	removed := openWorkspace(t, false)
	require.NoError(t, removed.Cleanup())
	assert.NoDirExists(t, removed.Dir())
}
