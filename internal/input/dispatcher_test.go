package input

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeganFiresOncePerHold(t *testing.T) {
	d := NewDispatcher()

	var got []Key
	d.On(Began, AnyKey(), func(in Input) {
		got = append(got, in.Key)
	})

	require.Equal(t, 1, d.Dispatch(KeyEvent{Key: KeyA, Pressed: true}))
	// auto-repeat
	require.Equal(t, 0, d.Dispatch(KeyEvent{Key: KeyA, Pressed: true}))
	require.Equal(t, 0, d.Dispatch(KeyEvent{Key: KeyA, Pressed: false}))
	require.Equal(t, 1, d.Dispatch(KeyEvent{Key: KeyA, Pressed: true}))

	require.Equal(t, []Key{KeyA, KeyA}, got)
}

func TestFilterRestrictsKey(t *testing.T) {
	d := NewDispatcher()

	var any, onlyA int
	d.On(Began, AnyKey(), func(Input) { any++ })
	d.On(Began, OnlyKey(KeyA), func(Input) { onlyA++ })

	d.Dispatch(KeyEvent{Key: KeySpace, Pressed: true})
	d.Dispatch(KeyEvent{Key: KeyA, Pressed: true})

	require.Equal(t, 2, any)
	require.Equal(t, 1, onlyA)
}

func TestEndedFiresOnRelease(t *testing.T) {
	d := NewDispatcher()

	var edges []Edge
	d.On(Ended, OnlyKey(KeyEscape), func(in Input) {
		edges = append(edges, in.Edge)
	})

	// release without a press is ignored
	require.Equal(t, 0, d.Dispatch(KeyEvent{Key: KeyEscape}))

	d.Dispatch(KeyEvent{Key: KeyEscape, Pressed: true})
	require.True(t, d.Held(KeyEscape))
	require.Empty(t, edges)

	require.Equal(t, 1, d.Dispatch(KeyEvent{Key: KeyEscape}))
	require.False(t, d.Held(KeyEscape))
	require.Equal(t, []Edge{Ended}, edges)
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	d := NewDispatcher()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		d.On(Began, AnyKey(), func(Input) { order = append(order, i) })
	}
	d.On(Began, AnyKey(), nil)

	require.Equal(t, 3, d.Len())
	d.Dispatch(KeyEvent{Key: KeyQ, Pressed: true})
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestResetForgetsHeldKeys(t *testing.T) {
	d := NewDispatcher()

	var ended int
	d.On(Ended, AnyKey(), func(Input) { ended++ })

	d.Dispatch(KeyEvent{Key: KeyA, Pressed: true})
	d.Reset()
	require.False(t, d.Held(KeyA))

	d.Dispatch(KeyEvent{Key: KeyA})
	require.Zero(t, ended)
}

func TestEdgeString(t *testing.T) {
	require.Equal(t, "Began", Began.String())
	require.Equal(t, "Ended", Ended.String())
	require.Equal(t, "Edge(7)", Edge(7).String())
}
