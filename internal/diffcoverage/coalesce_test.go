package diffcoverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesce_Empty(t *testing.T) {
	assert.Nil(t, Coalesce(nil, nil))
}

func TestCoalesce_SingleLine(t *testing.T) {
	assert.Equal(t, []Range{{Start: 5, End: 5}}, Coalesce([]int{5}, []int{5}))
}

func TestCoalesce_ContiguousRun(t *testing.T) {
	assert.Equal(t, []Range{{Start: 1, End: 5}}, Coalesce([]int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 5}))
}

func TestCoalesce_BridgesNonInstrumentableGap(t *testing.T) {
	// line 3 is not instrumentable, so missed lines 2 and 4 are bridged into one range.
	missed := []int{1, 2, 4, 5}
	instrumentable := []int{1, 2, 4, 5}
	assert.Equal(t, []Range{{Start: 1, End: 5}}, Coalesce(missed, instrumentable))
}

func TestCoalesce_SplitsWhenGapIsInstrumentable(t *testing.T) {
	missed := []int{1, 2, 4, 5}
	instrumentable := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []Range{{Start: 1, End: 2}, {Start: 4, End: 5}}, Coalesce(missed, instrumentable))
}

func TestCoalesce_GapBeyondMaxBridgeNeverBridged(t *testing.T) {
	missed := []int{1, 10}
	instrumentable := []int{1, 10}
	assert.Equal(t, []Range{{Start: 1, End: 1}, {Start: 10, End: 10}}, Coalesce(missed, instrumentable))
}
