package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/fabflow/store"
	"github.com/smallnest/fabflow/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCheckpointStore_Contract(t *testing.T) {
	s, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	storetest.RunCheckpointStoreContract(t, s)
}

func TestFileCheckpointStore_New(t *testing.T) {
	t.Run("creates directory if missing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "checkpoints")

		s, err := NewFileCheckpointStore(dir)
		require.NoError(t, err)
		require.NotNil(t, s)

		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})

	t.Run("fails on a file path", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

		_, err := NewFileCheckpointStore(filepath.Join(f, "sub"))
		assert.Error(t, err)
	})
}

func TestFileCheckpointStore_WritesJSONFile(t *testing.T) {
	s, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	cp := &store.Checkpoint{
		ID:       "cp-1",
		ThreadID: "thread-1",
		NodeName: "review",
		State:    json.RawMessage(`{"input_text":"LOT12 photo 검사해줘"}`),
		Next:     []string{"review"},
		Status:   store.StatusSuspended,
	}
	require.NoError(t, s.Save(context.Background(), cp))

	data, err := os.ReadFile(filepath.Join(s.path, "cp-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "suspended"`)
	assert.Contains(t, string(data), "LOT12")

	matches, _ := filepath.Glob(filepath.Join(s.path, ".cp-*.tmp"))
	assert.Empty(t, matches, "temp files must not be left behind")
}

func TestFileCheckpointStore_CorruptFile(t *testing.T) {
	s, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.path, "bad.json"), []byte("{"), 0o644))

	_, err = s.Load(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestFileCheckpointStore_IDCannotEscapeDirectory(t *testing.T) {
	s, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.path, "passwd.json"), s.filename("../../etc/passwd"))
}
