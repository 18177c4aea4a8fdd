package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingInput() TemplateGateInput {
	return TemplateGateInput{
		Tolerance:       2.0,
		AllowedPalettes: []string{"brand-blue", "brand-grey"},
		AllowedFonts:    []string{"Inter"},
		Slides: []SlideInspection{
			{Key: "slide-1", OffsetX: 1, OffsetY: -1, Palette: "brand-blue", Font: "Inter", HasTable: false},
			{Key: "slide-2", OffsetX: 0, OffsetY: 0, Palette: "brand-grey", Font: "Inter", HasTable: true, TableBordersOk: true},
		},
	}
}

func TestEvaluateTemplateGatePasses(t *testing.T) {
	verdict, err := EvaluateTemplateGate(passingInput())
	require.NoError(t, err)
	assert.True(t, verdict.Pass)
	assert.Empty(t, verdict.BlockingKeys)
}

func TestEvaluateTemplateGateFlagsOffsetViolation(t *testing.T) {
	input := passingInput()
	input.Slides[0].OffsetX = 10

	verdict, err := EvaluateTemplateGate(input)
	require.NoError(t, err)
	assert.False(t, verdict.Pass)
	assert.Contains(t, verdict.BlockingKeys, "slide-1")
}

func TestEvaluateTemplateGateFlagsPaletteViolation(t *testing.T) {
	input := passingInput()
	input.Slides[1].Palette = "off-brand-red"

	verdict, err := EvaluateTemplateGate(input)
	require.NoError(t, err)
	assert.False(t, verdict.Pass)
	assert.Contains(t, verdict.BlockingKeys, "slide-2")
}

func TestEvaluateTemplateGateFlagsTableBorderViolation(t *testing.T) {
	input := passingInput()
	input.Slides[1].TableBordersOk = false

	verdict, err := EvaluateTemplateGate(input)
	require.NoError(t, err)
	assert.False(t, verdict.Pass)
	require.Len(t, verdict.ViolationDetails, 1)
	assert.Equal(t, "table_borders", verdict.ViolationDetails[0].Rule)
}

func TestEvaluateTemplateGateNoTableSkipsBorderRule(t *testing.T) {
	input := TemplateGateInput{
		Tolerance:       2,
		AllowedPalettes: []string{"brand-blue"},
		AllowedFonts:    []string{"Inter"},
		Slides: []SlideInspection{
			{Key: "slide-1", Palette: "brand-blue", Font: "Inter", HasTable: false, TableBordersOk: false},
		},
	}
	verdict, err := EvaluateTemplateGate(input)
	require.NoError(t, err)
	assert.True(t, verdict.Pass)
}
