package cache_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upfetch/cache"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	st := stats.TrackerMock{}
	cfg := cache.MemoryConfig{
		Name:             "test",
		Stats:            &st,
		Logger:           ctxd.NoOpLogger{},
		TimeToLive:       5 * time.Millisecond,
		ExpirationJitter: -1,
	}
	mc := cache.NewMemory[int](cfg)

	defer mc.Close()

	_, err := mc.Read(ctx, "key")
	assert.EqualError(t, err, cache.ErrNotFound.Error())

	err = mc.Write(ctx, "key", 123)
	assert.NoError(t, err)

	val, err := mc.Read(ctx, "key")
	assert.Equal(t, 123, val)
	assert.NoError(t, err)

	// Expired.
	time.Sleep(10 * time.Millisecond)

	_, err = mc.Read(ctx, "key")
	assert.True(t, errors.Is(err, cache.ErrExpired))

	stale, ok := cache.Stale[int](err)
	assert.True(t, ok)
	assert.Equal(t, 123, stale)

	// Expired entry is purged by the next insert.
	err = mc.Write(ctx, "key2", 456)
	assert.NoError(t, err)

	_, err = mc.Read(ctx, "key")
	assert.EqualError(t, err, cache.ErrNotFound.Error())

	assert.Equal(
		t,
		map[string]float64{"cache_expired": 1, "cache_hit": 1, "cache_miss": 2, "cache_write": 2},
		st.Values(),
	)
}

func TestMemory_Read_ttlBoundary(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[string](cache.MemoryConfig{
		TimeToLive:       60 * time.Millisecond,
		ExpirationJitter: -1,
	})

	defer mc.Close()

	require.NoError(t, mc.Write(ctx, "key", "value"))

	// Well before expiration the entry is served.
	time.Sleep(30 * time.Millisecond)

	v, err := mc.Read(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, "value", v)

	// Well after expiration it is not.
	time.Sleep(50 * time.Millisecond)

	_, err = mc.Read(ctx, "key")
	assert.True(t, errors.Is(err, cache.ErrExpired))
}

func TestMemory_Write_ttlFromContext(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int](cache.MemoryConfig{
		TimeToLive:       time.Hour,
		ExpirationJitter: -1,
	})

	defer mc.Close()

	require.NoError(t, mc.Write(cache.WithTTL(ctx, 10*time.Millisecond), "short", 1))
	require.NoError(t, mc.Write(ctx, "long", 2))

	time.Sleep(20 * time.Millisecond)

	_, err := mc.Read(ctx, "short")
	assert.True(t, errors.Is(err, cache.ErrExpired))

	_, err = mc.Read(ctx, "long")
	assert.NoError(t, err)
}

func TestMemory_Read_skip(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int]()

	defer mc.Close()

	require.NoError(t, mc.Write(ctx, "key", 123))

	_, err := mc.Read(cache.WithSkipRead(ctx), "key")
	assert.EqualError(t, err, cache.ErrNotFound.Error())
}

func TestMemory_maxItems(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int](cache.MemoryConfig{
		MaxItems:         2,
		ExpirationJitter: -1,
	})

	defer mc.Close()

	require.NoError(t, mc.Write(ctx, "a", 1))
	require.NoError(t, mc.Write(ctx, "b", 2))
	require.NoError(t, mc.Write(ctx, "c", 3))

	// Count bound holds after every insert, the oldest of the equally cold
	// entries is dropped.
	assert.Equal(t, 2, mc.Len())

	_, err := mc.Read(ctx, "a")
	assert.EqualError(t, err, cache.ErrNotFound.Error())

	for _, k := range []string{"b", "c"} {
		_, err := mc.Read(ctx, k)
		assert.NoError(t, err, k)
	}
}

func TestMemory_maxBytes(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[string](cache.MemoryConfig{
		MaxBytes:         11000,
		ExpirationJitter: -1,
	})

	defer mc.Close()

	payload := strings.Repeat("x", 4096)

	require.NoError(t, mc.Write(ctx, "a", payload))
	require.NoError(t, mc.Write(ctx, "b", payload))

	// Rank "b" above the others.
	_, err := mc.Read(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, mc.Write(ctx, "c", payload))

	// Ceiling exceeded by the third entry, the coldest one ("a") is evicted.
	assert.Equal(t, 2, mc.Len())
	assert.LessOrEqual(t, mc.Stats().Bytes, uint64(11000))

	_, err = mc.Read(ctx, "a")
	assert.EqualError(t, err, cache.ErrNotFound.Error())

	_, err = mc.Read(ctx, "b")
	assert.NoError(t, err)

	_, err = mc.Read(ctx, "c")
	assert.NoError(t, err)
}

func TestMemory_Write_valueTooLarge(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[string](cache.MemoryConfig{
		MaxBytes: 100,
	})

	defer mc.Close()

	err := mc.Write(ctx, "huge", strings.Repeat("x", 4096))
	assert.True(t, errors.Is(err, cache.ErrValueTooLarge))
	assert.Equal(t, 0, mc.Len())
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int]()

	defer mc.Close()

	require.NoError(t, mc.Write(ctx, "key", 123))
	assert.NoError(t, mc.Delete(ctx, "key"))

	// Absent key is reported, repeated delete does not fail loudly.
	assert.EqualError(t, mc.Delete(ctx, "key"), cache.ErrNotFound.Error())

	_, err := mc.Read(ctx, "key")
	assert.EqualError(t, err, cache.ErrNotFound.Error())
}

func TestMemory_RemoveAll(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int]()

	defer mc.Close()

	// Empty cache is a no-op.
	mc.RemoveAll()

	require.NoError(t, mc.Write(ctx, "key", 123))
	mc.RemoveAll()

	assert.Equal(t, 0, mc.Len())
	assert.Equal(t, uint64(0), mc.Stats().Bytes)
}

func TestMemory_Walk(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int]()

	defer mc.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, mc.Write(ctx, strconv.Itoa(i), i))
	}

	n, err := mc.Walk(func(key string, e cache.Entry[int]) error {
		assert.Equal(t, key, strconv.Itoa(e.Value()))

		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	failEarly := errors.New("stop")

	n, err = mc.Walk(func(key string, e cache.Entry[int]) error {
		return failEarly
	})
	assert.Equal(t, failEarly, err)
	assert.Equal(t, 0, n)
}

func TestMemory_Close(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int]()

	require.NoError(t, mc.Write(ctx, "key", 123))

	mc.Close()
	// Repeated close is fine.
	mc.Close()

	// Janitor deactivates the store asynchronously.
	time.Sleep(10 * time.Millisecond)

	_, err := mc.Read(ctx, "key")
	assert.EqualError(t, err, cache.ErrClosed.Error())

	assert.EqualError(t, mc.Write(ctx, "key", 123), cache.ErrClosed.Error())
	assert.EqualError(t, mc.Delete(ctx, "key"), cache.ErrClosed.Error())

	_, err = mc.Walk(func(key string, e cache.Entry[int]) error { return nil })
	assert.EqualError(t, err, cache.ErrClosed.Error())
}

func TestMemory_janitor(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int](cache.MemoryConfig{
		TimeToLive:               3 * time.Millisecond,
		DeleteExpiredJobInterval: 5 * time.Millisecond,
		ExpirationJitter:         -1,
	})

	defer mc.Close()

	require.NoError(t, mc.Write(ctx, "key", 123))
	assert.Equal(t, 1, mc.Len())

	// Janitor removes the expired entry without any reads or writes.
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, mc.Len())
}

func TestMemory_ExpireAll_concurrency(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemory[int](cache.MemoryConfig{
		ExpirationJitter: -1,
	})

	defer mc.Close()

	require.NoError(t, mc.Write(ctx, "key", 123))

	pipeline := make(chan struct{}, 50)
	n := 500

	for i := 0; i < n; i++ {
		pipeline <- struct{}{}

		if i%100 == 0 {
			mc.ExpireAll()
		}

		go func() {
			defer func() {
				<-pipeline
			}()

			v, err := mc.Read(ctx, "key")
			if err == nil {
				assert.Equal(t, 123, v)

				return
			}

			assert.True(t, errors.Is(err, cache.ErrExpired))

			stale, ok := cache.Stale[int](err)
			assert.True(t, ok)
			assert.Equal(t, 123, stale)
		}()
	}

	// Waiting for goroutines to finish.
	for i := 0; i < cap(pipeline); i++ {
		pipeline <- struct{}{}
	}

	time.Sleep(time.Millisecond)

	_, err := mc.Read(ctx, "key")
	assert.True(t, errors.Is(err, cache.ErrExpired))
}

func TestMemory_Read_concurrency(t *testing.T) {
	st := &stats.TrackerMock{}
	c := cache.NewMemory[int](cache.MemoryConfig{
		Stats: st,
	})

	defer c.Close()

	ctx := context.Background()

	pipeline := make(chan struct{}, 500)
	n := 1000

	for i := 0; i < n; i++ {
		pipeline <- struct{}{}

		k := "oneone" + strconv.Itoa(i)

		go func() {
			defer func() {
				<-pipeline
			}()

			err := c.Write(ctx, k, 123)
			assert.NoError(t, err)

			v, err := c.Read(ctx, k)
			assert.NoError(t, err)
			assert.Equal(t, 123, v)
		}()
	}

	// Waiting for goroutines to finish.
	for i := 0; i < cap(pipeline); i++ {
		pipeline <- struct{}{}
	}

	// Every distinct key has a single write.
	assert.Equal(t, n, st.Int(cache.MetricWrite), "total writes")

	// Written value is returned for every key.
	assert.Equal(t, n, st.Int(cache.MetricHit))
}
