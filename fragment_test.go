package trellis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFragmentAssemblerSingleFragment(t *testing.T) {
	a := newFragmentAssembler(1, 1)
	require.False(t, a.isComplete())

	payload := []byte("small message")
	a.receive(0, payload)
	require.True(t, a.isComplete())
	require.Equal(t, payload, a.release())
}

func TestFragmentAssemblerOutOfOrder(t *testing.T) {
	const count = 4
	a := newFragmentAssembler(7, count)

	pieces := make([][]byte, count)
	for i := range pieces {
		pieces[i] = make([]byte, FragmentPayloadSize)
		for j := range pieces[i] {
			pieces[i][j] = byte(i)
		}
	}
	pieces[count-1] = pieces[count-1][:100] // last fragment is short

	order := []int{2, 0, 3, 1}
	for _, i := range order {
		require.False(t, a.hasFragment(uint8(i)))
		a.receive(uint8(i), pieces[i])
	}
	require.True(t, a.isComplete())

	data := a.release()
	require.Len(t, data, (count-1)*FragmentPayloadSize+100)
	for i := 0; i < count; i++ {
		start := i * FragmentPayloadSize
		end := start + len(pieces[i])
		require.Equal(t, pieces[i], data[start:end])
	}
}

func TestFragmentAssemblerResetReusesBackingArray(t *testing.T) {
	a := newFragmentAssembler(1, 4)
	before := &a.data[0]

	a.reset(2, 4)
	after := &a.data[0]
	require.Same(t, before, after, "same-size reset should reuse the backing array")
	require.False(t, a.isComplete())
}
