package ondisk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	d := NewMemDevice(64)
	require.NoError(t, d.WriteAt([]byte("hello"), 10))

	got := make([]byte, 5)
	require.NoError(t, d.ReadAt(got, 10))
	assert.Equal(t, "hello", string(got))

	size, err := d.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 64, size)
}

func TestMemDeviceRejectsOutOfBoundsAccess(t *testing.T) {
	d := NewMemDevice(16)
	assert.Error(t, d.ReadAt(make([]byte, 8), 10))
	assert.Error(t, d.WriteAt(make([]byte, 8), 10))
	assert.Error(t, d.ReadAt(make([]byte, 1), -1))
}

func TestMemDeviceBytesExposesBackingBuffer(t *testing.T) {
	d := NewMemDevice(4)
	require.NoError(t, d.WriteAt([]byte{1, 2, 3, 4}, 0))
	assert.Equal(t, []byte{1, 2, 3, 4}, d.Bytes())
}

func TestFileDeviceOpenMissingFileErrors(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.img"), nil)
	assert.Error(t, err)
}

func TestFileDeviceReadWriteFlushClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	dev, err := OpenFile(path, nil)
	require.NoError(t, err)

	require.NoError(t, dev.WriteAt([]byte("payload"), 4))
	got := make([]byte, 7)
	require.NoError(t, dev.ReadAt(got, 4))
	assert.Equal(t, "payload", string(got))

	size, err := dev.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 64, size)

	require.NoError(t, dev.Flush())
	require.NoError(t, dev.Close())
}

func TestFileDeviceReadPastEOFIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4), 0o644))

	dev, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, 16)
	assert.NoError(t, dev.ReadAt(buf, 0))
}

func TestFileDeviceRetryHandlerControlsRetryVsFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 8), 0o644))

	dev, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, dev.Close()) // force subsequent I/O to fail

	attempts := 0
	dev.onRetry = func(op string, offset int64, cause error) bool {
		attempts++
		return attempts < 3
	}

	err = dev.WriteAt([]byte("x"), 0)
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}
