package wizard

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutosaver_Every(t *testing.T) {
	a := NewAutosaver(nil)
	a.Start()
	defer a.Stop()

	var ticks atomic.Int32
	cancel, err := a.Every(time.Second, func() { ticks.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())

	assert.Eventually(t, func() bool { return ticks.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.Equal(t, 0, a.Len())
}

func TestAutosaver_RejectsShortInterval(t *testing.T) {
	a := NewAutosaver(nil)
	_, err := a.Every(500*time.Millisecond, func() {})
	assert.Error(t, err)
	assert.Equal(t, 0, a.Len())
}

func TestAutosaver_RecoversPanickingTick(t *testing.T) {
	a := NewAutosaver(nil)
	a.Start()
	defer a.Stop()

	var after atomic.Int32
	_, err := a.Every(time.Second, func() { panic("tick") })
	require.NoError(t, err)
	_, err = a.Every(time.Second, func() { after.Add(1) })
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return after.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}
