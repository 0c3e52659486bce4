package await

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllOf_AllFire(t *testing.T) {
	first := make(chan struct{})
	second := make(chan struct{})

	go func() {
		close(first)
		close(second)
	}()

	ok := AllOf(FromChan(first), FromChan(second)).Await(context.Background())
	require.True(t, ok)
}

func TestAllOf_ReadyChanCountedOnce(t *testing.T) {
	done := make(chan struct{})
	close(done)
	stuck := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// the closed channel must not satisfy the wait for the open one
	ok := AllOf(FromChan(done), FromChan(stuck)).Await(ctx)
	require.False(t, ok)
}

func TestAllOf_Empty(t *testing.T) {
	require.True(t, AllOf().Await(context.Background()))
}

func TestFromChan_CtxDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.False(t, FromChan(make(chan int)).Await(ctx))
}

func TestFromChan_ReceivesValue(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 42

	a := FromChan(ch)
	require.True(t, a.Await(context.Background()))

	v, ok := a.Value()
	require.True(t, ok)
	require.Equal(t, 42, v)
}
