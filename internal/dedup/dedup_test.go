package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldAnnounce(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("first announcement passes", func(t *testing.T) {
		d := New(5*time.Minute, 2*time.Minute)
		assert.True(t, d.ShouldAnnounce("f-1", base))
	})

	t.Run("suppressed for the whole window", func(t *testing.T) {
		d := New(5*time.Minute, 2*time.Minute)
		assert.True(t, d.ShouldAnnounce("f-1", base))

		for _, delta := range []time.Duration{0, time.Second, time.Minute, 5*time.Minute - time.Second} {
			assert.False(t, d.ShouldAnnounce("f-1", base.Add(delta)),
				"should suppress at +%s", delta)
		}
	})

	t.Run("passes again once the window elapses", func(t *testing.T) {
		d := New(5*time.Minute, 2*time.Minute)
		assert.True(t, d.ShouldAnnounce("f-1", base))
		assert.True(t, d.ShouldAnnounce("f-1", base.Add(5*time.Minute)))
	})

	t.Run("windows are independent per feature", func(t *testing.T) {
		d := New(5*time.Minute, 2*time.Minute)
		assert.True(t, d.ShouldAnnounce("f-1", base))
		assert.True(t, d.ShouldAnnounce("f-2", base))
		assert.False(t, d.ShouldAnnounce("f-1", base.Add(time.Minute)))
		assert.False(t, d.ShouldAnnounce("f-2", base.Add(time.Minute)))
	})

	t.Run("concurrent cycles admit a feature exactly once", func(t *testing.T) {
		d := New(5*time.Minute, 2*time.Minute)

		var wg sync.WaitGroup
		var mu sync.Mutex
		passed := 0
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if d.ShouldAnnounce("f-1", base) {
					mu.Lock()
					passed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, passed, "only one concurrent cycle should pass")
	})
}

func TestShouldSpeak(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("throttles globally across features", func(t *testing.T) {
		d := New(5*time.Minute, 2*time.Minute)

		// Two distinct features trigger within the cooldown: only the
		// first utterance goes out.
		assert.True(t, d.ShouldSpeak(base))
		assert.False(t, d.ShouldSpeak(base.Add(30*time.Second)))
		assert.False(t, d.ShouldSpeak(base.Add(2*time.Minute-time.Second)))
		assert.True(t, d.ShouldSpeak(base.Add(2*time.Minute)))
	})
}

func TestReset(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	d := New(5*time.Minute, 2*time.Minute)
	assert.True(t, d.ShouldAnnounce("f-1", base))
	assert.True(t, d.ShouldSpeak(base))

	d.Reset()

	assert.True(t, d.ShouldAnnounce("f-1", base.Add(time.Second)), "reset should clear announce windows")
	assert.True(t, d.ShouldSpeak(base.Add(time.Second)), "reset should clear the voice cooldown")
}

func TestDefaults(t *testing.T) {
	d := New(0, 0)
	assert.Equal(t, DefaultAnnounceWindow, d.announceWindow)
	assert.Equal(t, DefaultVoiceCooldown, d.voiceCooldown)
}
