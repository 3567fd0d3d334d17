package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/fz-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func mountedCard(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "FLIPPER SD")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ext", "nfc"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ext", "nfc", "card.nfc"), []byte("Filetype: Flipper NFC device"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ext", "Manifest"), []byte("V:0"), 0o640))
	return root
}

func TestOpen_NotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o640))

	_, err := Open(testLogger(), models.DeviceConfig{Root: f})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(testLogger(), models.DeviceConfig{Root: filepath.Join(t.TempDir(), "nope")})

	require.Error(t, err)
}

func TestDevice_List(t *testing.T) {
	root := mountedCard(t)
	require.NoError(t, os.Symlink(filepath.Join(root, "ext"), filepath.Join(root, "ext", "loop")))

	dev, err := Open(testLogger(), models.DeviceConfig{Root: root})
	require.NoError(t, err)

	entries, err := dev.List(context.Background(), "/ext")

	require.NoError(t, err)
	assert.ElementsMatch(t, []models.RemoteEntry{
		{Name: "nfc", Kind: models.EntryDirectory},
		{Name: "Manifest", Kind: models.EntryFile},
		{Name: "loop", Kind: models.EntryOther},
	}, entries)
}

func TestDevice_ListMissing(t *testing.T) {
	dev, err := Open(testLogger(), models.DeviceConfig{Root: mountedCard(t)})
	require.NoError(t, err)

	_, err = dev.List(context.Background(), "/int")

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDevice_ReadFile(t *testing.T) {
	dev, err := Open(testLogger(), models.DeviceConfig{Root: mountedCard(t)})
	require.NoError(t, err)

	data, err := dev.ReadFile(context.Background(), "/ext/nfc/card.nfc")

	require.NoError(t, err)
	assert.Equal(t, "Filetype: Flipper NFC device", string(data))
}

func TestDevice_ReadFileStaysInsideRoot(t *testing.T) {
	root := mountedCard(t)
	secret := filepath.Join(filepath.Dir(root), "secret")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o640))

	dev, err := Open(testLogger(), models.DeviceConfig{Root: root})
	require.NoError(t, err)

	_, err = dev.ReadFile(context.Background(), "/../secret")

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDevice_Identity(t *testing.T) {
	root := mountedCard(t)

	dev, err := Open(testLogger(), models.DeviceConfig{Root: root})
	require.NoError(t, err)
	name, err := dev.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FLIPPER SD", name)

	dev, err = Open(testLogger(), models.DeviceConfig{Root: root, Name: "Flipper Zero"})
	require.NoError(t, err)
	name, err = dev.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Flipper Zero", name)
}

func TestDevice_Cancelled(t *testing.T) {
	dev, err := Open(testLogger(), models.DeviceConfig{Root: mountedCard(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = dev.List(ctx, "/ext")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = dev.ReadFile(ctx, "/ext/Manifest")
	assert.ErrorIs(t, err, context.Canceled)
}
