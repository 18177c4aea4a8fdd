package stage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlanreed/phasetracker/pkg/stage"
)

func TestOrderMatchesSpec(t *testing.T) {
	want := []string{"2", "2a", "3", "3a", "4", "4a", "5", "6", "6a", "7", "8", "8a", "9"}
	assert.Equal(t, want, stage.Order)
}

func TestPartitionIsDisjointUnion(t *testing.T) {
	seen := map[string]bool{}
	for _, id := range stage.Order {
		def, ok := stage.Definitions[id]
		require.True(t, ok, "stage %s must be defined", id)
		require.False(t, seen[id], "stage %s duplicated", id)
		seen[id] = true

		if def.Kind == stage.KindReview {
			assert.Equal(t, byte('a'), id[len(id)-1], "review stage %s must end in 'a'", id)
		}
	}
	assert.Len(t, seen, len(stage.Order))
}

func TestIndexNextPrev(t *testing.T) {
	assert.Equal(t, 0, stage.Index("2"))
	assert.Equal(t, -1, stage.Index("nope"))

	assert.Equal(t, "2a", stage.Next("2"))
	assert.Equal(t, "", stage.Next("9"))
	assert.Equal(t, "", stage.Next("nope"))

	assert.Equal(t, "2", stage.Prev("2a"))
	assert.Equal(t, "", stage.Prev("2"))
}

func TestSlice(t *testing.T) {
	assert.Equal(t, []string{"2", "2a", "3"}, stage.Slice("3"))
	assert.Nil(t, stage.Slice("nope"))

	assert.Equal(t, []string{"3a", "4", "4a", "5"}, stage.SliceFrom("3a", "5"))
	assert.Nil(t, stage.SliceFrom("5", "3"))
}

func TestIsValidIsReview(t *testing.T) {
	assert.True(t, stage.IsValid("6a"))
	assert.False(t, stage.IsValid("6z"))
	assert.True(t, stage.IsReview("6a"))
	assert.False(t, stage.IsReview("6"))
}

func TestLast(t *testing.T) {
	assert.Equal(t, "9", stage.Last())
}
