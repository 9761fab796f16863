package idgen

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(ms int64) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}

func TestSnowflake_Next(t *testing.T) {
	clock := &fakeClock{now: Epoch + 1000}
	sf, err := New(7, clock)
	require.NoError(t, err)

	id1, err := sf.Next()
	require.NoError(t, err)
	id2, err := sf.Next()
	require.NoError(t, err)

	assert.Less(t, id1, id2)

	ms, node, seq := Decompose(id2)
	assert.Equal(t, int64(Epoch+1000), ms)
	assert.Equal(t, int64(7), node)
	assert.Equal(t, int64(1), seq)
}

func TestNew_NodeIDRange(t *testing.T) {
	tests := []struct {
		name    string
		nodeID  int64
		wantErr error
	}{
		{name: "zero", nodeID: 0},
		{name: "max", nodeID: 1023},
		{name: "too large", nodeID: 1024, wantErr: ErrNodeIDTooLarge},
		{name: "negative", nodeID: -1, wantErr: ErrNodeIDTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nodeID, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSnowflake_ClockMovedBack(t *testing.T) {
	clock := &fakeClock{now: Epoch + 2000}
	sf, err := New(1, clock)
	require.NoError(t, err)

	_, err = sf.Next()
	require.NoError(t, err)

	clock.set(Epoch + 1000)
	_, err = sf.NewID()
	assert.ErrorIs(t, err, ErrClockMovedBack)
}

func TestSnowflake_NewIDIsDecimal(t *testing.T) {
	sf, err := New(3, &fakeClock{now: Epoch + 5})
	require.NoError(t, err)

	id, err := sf.NewID()
	require.NoError(t, err)

	n, err := strconv.ParseInt(id, 10, 64)
	require.NoError(t, err)
	_, node, _ := Decompose(n)
	assert.Equal(t, int64(3), node)
}

func TestSnowflake_Concurrency(t *testing.T) {
	sf, err := New(1, SystemClock{})
	require.NoError(t, err)

	const workers, perWorker = 50, 1000
	ids := make(chan string, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id, err := sf.NewID()
				if err != nil {
					t.Errorf("generate: %v", err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestRedisClock_Now(t *testing.T) {
	client, mock := redismock.NewClientMock()
	serverTime := time.Date(2025, 3, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)
	mock.ExpectTime().SetVal(serverTime)

	clock := NewRedisClock(client)
	assert.Equal(t, serverTime.UnixMilli(), clock.Now())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUUID_NewID(t *testing.T) {
	gen := UUID{}
	a, err := gen.NewID()
	require.NoError(t, err)
	b, err := gen.NewID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}
