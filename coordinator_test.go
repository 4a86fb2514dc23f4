package transload

import (
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinatorLegs(n int, urls ...string) []*Leg {
	legs := make([]*Leg, n)
	for i := 0; i < n; i++ {
		url := "http://unused"
		if i < len(urls) {
			url = urls[i]
		}
		legs[i] = NewLeg(uint(i), UploadConfig{UploadURL: url}, http.DefaultClient, false, nil, silentLogger{})
	}
	return legs
}

func TestCoordinatorSetSizeAndFilenameFanOut(t *testing.T) {
	legs := newTestCoordinatorLegs(3)
	c := NewCoordinator(legs, silentLogger{})

	c.SetSize(1234)
	c.SetFilename("payload.bin")

	for _, l := range legs {
		assert.Equal(t, StateActive, l.state_())
		assert.Equal(t, "payload.bin", l.fileName)
	}
}

func TestCoordinatorBroadcastDeliversToEveryLiveLegInOrder(t *testing.T) {
	legs := newTestCoordinatorLegs(3)
	c := NewCoordinator(legs, silentLogger{})
	c.SetSize(15)

	c.Broadcast([]byte("hello"))
	c.Broadcast([]byte(" wor"))
	c.Broadcast([]byte("ld!!"))

	for _, l := range legs {
		assert.Equal(t, uint64(13), l.uploadedBytes)

		got := make([]byte, 13)
		_, err := io.ReadFull(l.buffer, got)
		require.NoError(t, err)
		assert.Equal(t, "hello world!!", string(got))
	}
}

func TestCoordinatorBroadcastSkipsDeadLegs(t *testing.T) {
	legs := newTestCoordinatorLegs(2)
	c := NewCoordinator(legs, silentLogger{})
	c.SetSize(5)

	legs[1].Abort(assertErr("pre-dead"))

	c.Broadcast([]byte("abcde"))

	assert.Equal(t, uint64(5), legs[0].uploadedBytes)
	assert.Equal(t, uint64(0), legs[1].uploadedBytes)
}

func TestCoordinatorAllDeadAndUnusableSignal(t *testing.T) {
	legs := newTestCoordinatorLegs(2)
	c := NewCoordinator(legs, silentLogger{})
	c.SetSize(5)

	var mu sync.Mutex
	unusable := false
	c.Subscribe(func(uint) {}, func(uint) {}, func() {
		mu.Lock()
		unusable = true
		mu.Unlock()
	})

	assert.False(t, c.AllDead())

	c.AbortAll(assertErr("session cancelled"))
	assert.True(t, c.AllDead())

	c.Broadcast([]byte("x"))
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, unusable)
}

func TestCoordinatorStuckUnstuckSignalsPropagateFromLeg(t *testing.T) {
	legs := newTestCoordinatorLegs(1)
	c := NewCoordinator(legs, silentLogger{})
	c.SetSize(uint64(BufferCap + 1))

	stuckCh := make(chan uint, 1)
	unstuckCh := make(chan uint, 1)
	c.Subscribe(
		func(idx uint) { stuckCh <- idx },
		func(idx uint) { unstuckCh <- idx },
		func() {},
	)

	c.Broadcast(make([]byte, BufferCap+1))
	select {
	case idx := <-stuckCh:
		assert.Equal(t, uint(0), idx)
	default:
		t.Fatal("expected a stuck signal")
	}

	buf := make([]byte, BufferCap+1)
	_, err := legs[0].buffer.Read(buf)
	require.NoError(t, err)

	select {
	case idx := <-unstuckCh:
		assert.Equal(t, uint(0), idx)
	case <-time.After(time.Second):
		t.Fatal("expected an unstuck signal after drain")
	}
}
