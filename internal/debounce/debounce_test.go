package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 16)}
}

func (r *recorder) record(v string) {
	r.mu.Lock()
	r.calls = append(r.calls, v)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestTriggerCoalescesBurst(t *testing.T) {
	rec := newRecorder()
	d := New(20*time.Millisecond, rec.record)

	for _, q := range []string{"h", "he", "hel", "hello"} {
		d.Trigger(q)
	}

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}
	// Give a stray second call a chance to show up.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"hello"}, rec.snapshot())
	assert.False(t, d.Pending())
}

func TestCancelDropsPendingCall(t *testing.T) {
	rec := newRecorder()
	d := New(10*time.Millisecond, rec.record)

	d.Trigger("query")
	require.True(t, d.Pending())
	d.Cancel()

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestFlushRunsImmediately(t *testing.T) {
	rec := newRecorder()
	d := New(time.Hour, rec.record)

	assert.False(t, d.Flush())

	d.Trigger("now")
	assert.True(t, d.Flush())
	assert.Equal(t, []string{"now"}, rec.snapshot())
	assert.False(t, d.Pending())
}

func TestStopIgnoresLaterTriggers(t *testing.T) {
	rec := newRecorder()
	d := New(5*time.Millisecond, rec.record)

	d.Stop()
	d.Trigger("late")

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
	assert.False(t, d.Pending())
}
