package polling

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/processor"
)

type recordingQueue struct {
	mu   sync.Mutex
	reqs []processor.Request
}

func (q *recordingQueue) Queue(req processor.Request) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return true, nil
}

func (q *recordingQueue) paths() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	paths := make([]string, 0, len(q.reqs))
	for _, r := range q.reqs {
		paths = append(paths, r.Path)
	}
	return paths
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestPollerQueuesOnlyNewFiles(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "Bar", "Season 1", "Bar - S01E01.mkv")
	writeFile(t, existing)

	q := &recordingQueue{}
	p, err := New(Config{Paths: []string{root}, Extensions: []string{"MKV"}}, q)
	require.NoError(t, err)

	p.doScan()
	assert.Empty(t, q.paths(), "files present at startup are not queued")
	assert.Equal(t, 1, p.Stats().SeenFiles)

	added := filepath.Join(root, "Bar", "Season 1", "Bar - S01E02.mkv")
	writeFile(t, added)
	writeFile(t, filepath.Join(root, "Bar", "Season 1", "Bar - S01E02.nfo"))

	p.doScan()
	assert.Equal(t, []string{added}, q.paths())
	assert.Equal(t, database.SourceWatcher, q.reqs[0].Source)

	p.doScan()
	assert.Len(t, q.paths(), 1, "a seen file is queued once")
}

func TestPollerRequeuesReturningFile(t *testing.T) {
	root := t.TempDir()
	q := &recordingQueue{}
	p, err := New(Config{Paths: []string{root}}, q)
	require.NoError(t, err)
	p.doScan()

	file := filepath.Join(root, "Foo (2020)", "Foo.mkv")
	writeFile(t, file)
	p.doScan()

	require.NoError(t, os.Remove(file))
	p.doScan()
	assert.Equal(t, 0, p.Stats().SeenFiles)

	writeFile(t, file)
	p.doScan()
	assert.Equal(t, []string{file, file}, q.paths())
}

func TestNewPoller(t *testing.T) {
	_, err := New(Config{}, &recordingQueue{})
	assert.Error(t, err)

	p, err := New(Config{Paths: []string{t.TempDir()}, Interval: time.Second}, &recordingQueue{})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, p.interval, "intervals below the minimum fall back to the default")

	p, err = New(Config{Paths: []string{t.TempDir()}, Interval: 30 * time.Second}, &recordingQueue{})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.interval)
}

func TestPollerStartStop(t *testing.T) {
	q := &recordingQueue{}
	p, err := New(Config{Paths: []string{t.TempDir()}, Interval: MinInterval}, q)
	require.NoError(t, err)

	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
	assert.Empty(t, q.paths())
}
