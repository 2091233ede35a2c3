package settingsfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingApplier struct {
	mu      sync.Mutex
	applied []*File
	applyFn func(f *File) error
}

func (r *recordingApplier) ApplySettingsFile(_ context.Context, f *File) error {
	if r.applyFn != nil {
		if err := r.applyFn(f); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, f)
	return nil
}

func (r *recordingApplier) last() *File {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.applied) == 0 {
		return nil
	}
	return r.applied[len(r.applied)-1]
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{
		"accounts": ["acct1", "acct2"],
		"intervalSeconds": 120,
		"policies": [{"account": "acct1", "mode": "batched", "instructions": "summarize"}]
	}`)

	f, err := Read(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"acct1", "acct2"}, f.Accounts)
	assert.Equal(t, int64(120), f.IntervalSeconds)
	require.Len(t, f.Policies, 1)
	assert.Equal(t, "summarize", f.Policies[0].Instructions)
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{"accounts": [`)

	_, err := Read(path)
	assert.Error(t, err)
}

func TestWatcherAppliesOnStartAndOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{"accounts": ["acct1"]}`)
	applier := &recordingApplier{}
	w := NewWatcher(path, applier, zaptest.NewLogger(t))

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	require.NotNil(t, applier.last())
	assert.Equal(t, []string{"acct1"}, applier.last().Accounts)

	writeFile(t, path, `{"accounts": ["acct2"]}`)
	require.Eventually(t, func() bool {
		f := applier.last()
		return f != nil && len(f.Accounts) == 1 && f.Accounts[0] == "acct2"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherIgnoresRejectedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{"intervalSeconds": 1}`)
	applier := &recordingApplier{applyFn: func(*File) error { return errors.New("interval too short") }}
	w := NewWatcher(path, applier, zaptest.NewLogger(t))

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	assert.Nil(t, applier.last())
}

func TestWatcherMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	applier := &recordingApplier{}
	w := NewWatcher(path, applier, zaptest.NewLogger(t))

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	assert.Nil(t, applier.last())
}
