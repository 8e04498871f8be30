package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenCXxx/townpass-microservice/internal/geo"
)

func TestFeed(t *testing.T) {
	fix := func(lat float64) geo.Position {
		return geo.Position{Latitude: lat, Longitude: 121.5, ObservedAt: time.Now()}
	}

	t.Run("publish before subscribe is discarded", func(t *testing.T) {
		f := NewFeed()
		f.Publish(fix(25.0))

		ch, err := f.Subscribe(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ch)
	})

	t.Run("delivers fixes in FIFO order", func(t *testing.T) {
		f := NewFeed()
		ch, err := f.Subscribe(context.Background())
		require.NoError(t, err)

		f.Publish(fix(25.01))
		f.Publish(fix(25.02))
		f.Publish(fix(25.03))

		assert.Equal(t, 25.01, (<-ch).Latitude)
		assert.Equal(t, 25.02, (<-ch).Latitude)
		assert.Equal(t, 25.03, (<-ch).Latitude)
	})

	t.Run("second subscriber is rejected while one is attached", func(t *testing.T) {
		f := NewFeed()
		_, err := f.Subscribe(context.Background())
		require.NoError(t, err)

		_, err = f.Subscribe(context.Background())
		assert.Error(t, err)
	})

	t.Run("cancel releases the subscription slot", func(t *testing.T) {
		f := NewFeed()
		ctx, cancel := context.WithCancel(context.Background())
		_, err := f.Subscribe(ctx)
		require.NoError(t, err)

		cancel()
		require.Eventually(t, func() bool {
			_, err := f.Subscribe(context.Background())
			return err == nil
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("full buffer drops the oldest fix, never blocks", func(t *testing.T) {
		f := NewFeed()
		ch, err := f.Subscribe(context.Background())
		require.NoError(t, err)

		for i := 0; i < feedBuffer+10; i++ {
			f.Publish(fix(25.0 + float64(i)/1000))
		}

		// The oldest fixes are gone; the newest survived.
		assert.Len(t, ch, feedBuffer)
		first := <-ch
		assert.Greater(t, first.Latitude, 25.0)
	})
}
