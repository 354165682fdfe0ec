package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHypsometricAlphaEndpointsClamp(t *testing.T) {
	assert.Equal(t, byte(255), hypsometricAlpha(-20000))
	assert.Equal(t, byte(0), hypsometricAlpha(20000))
}

func TestHypsometricAlphaExactTablePoints(t *testing.T) {
	for _, row := range hypsometricTable {
		assert.Equal(t, byte(row.alpha), hypsometricAlpha(row.height), "height=%v", row.height)
	}
}

func TestHypsometricAlphaIsMonotonicallyDecreasing(t *testing.T) {
	prev := hypsometricAlpha(-11000)
	for h := -10000.0; h <= 8850; h += 250 {
		cur := hypsometricAlpha(h)
		assert.LessOrEqual(t, cur, prev, "alpha should not increase with height (h=%v)", h)
		prev = cur
	}
}

func TestHypsometricAlphaInterpolatesBetweenPoints(t *testing.T) {
	got := hypsometricAlpha(250)
	assert.True(t, got < 230 && got > 200, "expected an interpolated value between 200 and 230, got %d", got)
}
