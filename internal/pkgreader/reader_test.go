package pkgreader

import (
	"archive/zip"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return path
}

const validManifest = `{
	"manifest": {
		"application": {
			"dat_file": "app.dat",
			"bin_file": "app.bin"
		}
	}
}`

func TestReadHappyPath(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"manifest.json": validManifest,
		"app.dat":       "INIT-PACKET",
		"app.bin":       "FIRMWARE-BYTES",
	})

	init, fw, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("INIT-PACKET"), init)
	assert.Equal(t, []byte("FIRMWARE-BYTES"), fw)
}

func TestReadMissingManifest(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"app.dat": "x",
		"app.bin": "y",
	})

	_, _, err := Read(path)
	require.Error(t, err)
	var pkgErr *PackageError
	assert.ErrorAs(t, err, &pkgErr)
}

func TestReadMissingApplicationEntry(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"manifest.json": `{"manifest": {}}`,
	})

	_, _, err := Read(path)
	require.Error(t, err)
}

func TestReadRejectsBootloaderEntry(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"manifest.json": `{
			"manifest": {
				"application": {"dat_file": "app.dat", "bin_file": "app.bin"},
				"bootloader": {"bin_file": "bl.bin", "dat_file": "bl.dat"}
			}
		}`,
		"app.dat": "x",
		"app.bin": "y",
		"bl.dat":  "z",
		"bl.bin":  "z",
	})

	_, _, err := Read(path)
	require.Error(t, err)
}

func TestReadRejectsSoftdeviceEntry(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"manifest.json": `{
			"manifest": {
				"application": {"dat_file": "app.dat", "bin_file": "app.bin"},
				"softdevice": {"bin_file": "sd.bin"}
			}
		}`,
		"app.dat": "x",
		"app.bin": "y",
		"sd.bin":  "z",
	})

	_, _, err := Read(path)
	require.Error(t, err)
}

func TestReadMissingMember(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"manifest.json": validManifest,
		"app.dat":       "x",
	})

	_, _, err := Read(path)
	require.Error(t, err)
}

func TestReadNotAnArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-zip")
	require.NoError(t, ioutil.WriteFile(path, []byte("plain text"), 0o644))

	_, _, err := Read(path)
	require.Error(t, err)
}
