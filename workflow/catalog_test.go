package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDef(t *testing.T, dir, file, id string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	body := strings.ReplaceAll(`id: ID
name: ID
nodes:
  - id: start
    type: trigger
`, "ID", id)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCatalog_PutAndGet(t *testing.T) {
	t.Parallel()

	c := NewCatalog(nil)
	require.NoError(t, c.Put(&Definition{ID: "a", Nodes: []Node{{ID: "s", Type: NodeTypeTrigger}}}))
	assert.Error(t, c.Put(&Definition{ID: "bad"}))
	assert.Error(t, c.Put(nil))

	def, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", def.ID)
	_, ok = c.Get("bad")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, c.IDs())
}

func TestCatalog_LoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDef(t, dir, "one.yaml", "one")
	writeDef(t, dir, "two.yml", "two")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"id":`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))

	c := NewCatalog(nil)
	err := c.LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
	assert.Equal(t, []string{"one", "two"}, c.IDs())

	assert.Error(t, c.LoadDir(filepath.Join(dir, "missing")))
}

func TestCatalog_WatchReloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writeDef(t, dir, "one.yaml", "one")

	c := NewCatalog(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Watch(ctx, dir, 10*time.Millisecond)

	eventually := func(cond func() bool) {
		t.Helper()
		require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
	}

	eventually(func() bool { _, ok := c.Get("one"); return ok })

	writeDef(t, dir, "two.yaml", "two")
	eventually(func() bool { _, ok := c.Get("two"); return ok })

	// Renaming the id inside a file replaces the old entry.
	writeDef(t, dir, "one.yaml", "uno")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(first, future, future))
	eventually(func() bool {
		_, oldOK := c.Get("one")
		_, newOK := c.Get("uno")
		return !oldOK && newOK
	})

	require.NoError(t, os.Remove(first))
	eventually(func() bool { _, ok := c.Get("uno"); return !ok })
}
