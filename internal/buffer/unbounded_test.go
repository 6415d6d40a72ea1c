package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnbounded_SendNeverBlocks(t *testing.T) {
	b := NewUnbounded[int]()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			b.Send(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked without a consumer")
	}
}

func TestUnbounded_PreservesOrder(t *testing.T) {
	b := NewUnbounded[int]()
	for i := range 100 {
		b.Send(i)
	}
	b.Close()

	var got []int
	for v := range b.Receive() {
		got = append(got, v)
	}

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestUnbounded_CloseDrainsThenCloses(t *testing.T) {
	b := NewUnbounded[string]()
	b.Send("a")
	b.Send("b")
	b.Close()
	b.Close()
	b.Send("dropped")

	var got []string
	for v := range b.Receive() {
		got = append(got, v)
	}

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestUnbounded_ReceiveAfterIdle(t *testing.T) {
	b := NewUnbounded[int]()
	defer b.Close()

	time.Sleep(10 * time.Millisecond)
	b.Send(7)

	select {
	case v := <-b.Receive():
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("item not delivered")
	}
}

func TestUnbounded_StopReleasesDelivery(t *testing.T) {
	b := NewUnbounded[int]()
	for i := range 5 {
		b.Send(i)
	}

	// Take one item so delivery is parked on the next, then walk away.
	<-b.Receive()
	b.Stop()
	b.Stop()
	b.Send(99)

	assert.Equal(t, 0, b.Len())

	closed := make(chan int)
	go func() {
		n := 0
		for range b.Receive() {
			n++
		}
		closed <- n
	}()

	select {
	case n := <-closed:
		assert.LessOrEqual(t, n, 1, "at most the item already in flight")
	case <-time.After(2 * time.Second):
		t.Fatal("delivery goroutine did not exit after Stop")
	}
}
