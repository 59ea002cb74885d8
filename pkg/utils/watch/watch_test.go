package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"
)

func TestFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "model.bin")
	other := filepath.Join(dir, "other.bin")
	gta.NilError(t, os.WriteFile(target, []byte("v1"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	gta.NilError(t, File(ctx, target, func() { calls.Add(1) }))

	gta.NilError(t, os.WriteFile(other, []byte("x"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load(), "other files are ignored")

	// replace by rename, the way models are saved
	tmp := target + ".tmp"
	gta.NilError(t, os.WriteFile(tmp, []byte("v2"), 0o600))
	gta.NilError(t, os.Rename(tmp, target))
	assert.Eventually(t, func() bool { return calls.Load() > 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestFile_MissingDir(t *testing.T) {
	err := File(context.Background(), filepath.Join(t.TempDir(), "nope", "model.bin"), func() {})
	assert.Error(t, err)
}
