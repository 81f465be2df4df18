package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDilutedWindower_Windows_CoversFullRangeWithOverlap(t *testing.T) {
	w := NewDilutedWindower(100, 20, 4, 4)

	windows := w.Windows(350)
	require.NotEmpty(t, windows)

	// Every token index must be covered by at least one window.
	covered := make([]bool, 350)
	for _, win := range windows {
		for i := win.TokenStart; i < win.TokenEnd; i++ {
			covered[i] = true
		}
	}
	for i, c := range covered {
		require.True(t, c, "token %d not covered by any window", i)
	}

	// Consecutive windows overlap by the configured amount (except the
	// final, possibly-shorter window).
	for i := 1; i < len(windows); i++ {
		overlap := windows[i-1].TokenEnd - windows[i].TokenStart
		assert.Equal(t, 20, overlap)
	}

	assert.Equal(t, 350, windows[len(windows)-1].TokenEnd)
}

func TestDilutedWindower_Windows_ShortDocumentIsSingleWindow(t *testing.T) {
	w := NewDilutedWindower(100, 20, 4, 4)

	windows := w.Windows(50)
	require.Len(t, windows, 1)
	assert.Equal(t, 0, windows[0].TokenStart)
	assert.Equal(t, 50, windows[0].TokenEnd)
}

func TestDilutedWindower_Windows_EmptyDocumentReturnsNil(t *testing.T) {
	w := NewDilutedWindower(100, 20, 4, 4)
	assert.Nil(t, w.Windows(0))
}

func TestDilutedWindower_Diluted_KeepsDenseHeadAndSamplesTail(t *testing.T) {
	w := NewDilutedWindower(100, 20, 2, 3)

	// 20 full windows worth of tokens, plenty to dilute.
	total := 20*80 + 100
	all := w.Windows(total)
	diluted := w.Diluted(total)

	require.True(t, len(diluted) < len(all), "dilution should drop some windows")
	assert.Equal(t, all[0], diluted[0])
	assert.Equal(t, all[1], diluted[1])

	// Every kept window beyond the dense head must be a real window from
	// the full sequence, in increasing index order.
	lastIdx := -1
	for _, win := range diluted {
		assert.Greater(t, win.Index, lastIdx)
		lastIdx = win.Index
	}
}

func TestDilutedWindower_Diluted_ShortDocumentIsNotDiluted(t *testing.T) {
	w := NewDilutedWindower(100, 20, 4, 4)

	total := 50
	assert.Equal(t, w.Windows(total), w.Diluted(total))
}

func TestNewDilutedWindower_InvalidOverlapFallsBackToDefault(t *testing.T) {
	w := NewDilutedWindower(100, 150, 0, 0)
	assert.Equal(t, DefaultWindowOverlapTokens, w.overlapTokens)
	assert.Equal(t, 4, w.denseWindows)
	assert.Equal(t, DefaultDilutionStride, w.stride)
}
