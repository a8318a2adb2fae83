package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/plctool/internal/config"
	"github.com/conneroisu/plctool/internal/textcodec"
	"github.com/stretchr/testify/require"
)

// SamplePLL is a small library source with one of each common declaration.
const SamplePLL = `(*
	name: sample
	descr: Sample library
	version: 1.0.0
	author: tests
*)

	VAR_GLOBAL
	{G:"Machine"}
	Speed AT %MD500.10 : DINT; { DE:"Axis speed" }
	Label : STRING[ 32 ];
	END_VAR

	VAR_GLOBAL CONSTANT
	MaxSpeed : DINT := 3000; { DE:"Speed limit" }
	END_VAR

FUNCTION Twice : INT
	VAR_INPUT
	v : INT;
	END_VAR
	{ CODE:ST }
Twice := 2 * v;
END_FUNCTION
`

// SampleHeader is a header with one register and one numeric constant.
const SampleHeader = `// Machine registers
#define Speed  vq10   // Axis speed
#define MAX_SPEED 3000 // [DINT] Speed limit
#define NAME "machine"
`

// CreateTempProject creates a temporary directory with a libs subfolder.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "libs"), 0o755))
	return tempDir
}

// WriteFile writes content to dir/name in the given encoding and returns
// the path. Intermediate directories are created.
func WriteFile(t *testing.T, dir, name, content string, enc textcodec.Encoding) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	b, err := textcodec.Encode(content, enc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

// ReadFile decodes path and returns its content and encoding.
func ReadFile(t *testing.T, path string) textcodec.Text {
	t.Helper()
	text, err := textcodec.ReadFile(path)
	require.NoError(t, err)
	return text
}

// CreateTestConfig returns the default configuration with reproducible
// output.
func CreateTestConfig() *config.Config {
	cfg := config.Default()
	cfg.PLCLib.Timestamp = false
	return cfg
}

// AssertNoFile fails when path exists.
func AssertNoFile(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "%s should not exist", path)
}

// AssertFilePermissions checks the permission bits of a file.
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0o777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0o777), expectedMode)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}

// WaitForFile waits for a file to appear.
func WaitForFile(t *testing.T, filePath string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filePath); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("File %s was not created within %v", filePath, timeout)
}
