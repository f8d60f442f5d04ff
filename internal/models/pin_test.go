package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorySubsets(t *testing.T) {
	assert.Len(t, Categories, 16)

	for _, wt := range WeeklyResetTypes {
		assert.True(t, wt.Valid(), "weekly reset type %s must be a known category", wt)
	}

	massAction := []PinType{PinRegionQuest, PinSudden, PinMarmot, PinMoonKey, PinChest, PinPuzzle}
	for _, c := range Categories {
		assert.Equal(t, contains(massAction, c.Type), c.Type.MassActionEligible(), "mass action %s", c.Type)
	}

	commentless := []PinType{PinPotato, PinMemory, PinRemembrance, PinRecall, PinOblivion, PinVitality, PinPrimeval, PinPurity, PinVigor}
	for _, c := range Categories {
		assert.Equal(t, contains(commentless, c.Type), c.Type.Commentless(), "commentless %s", c.Type)
	}
}

func contains(list []PinType, t PinType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func TestPinTypeLookup(t *testing.T) {
	pt, ok := PinTypeByIndex(0)
	assert.True(t, ok)
	assert.Equal(t, PinRegionQuest, pt)
	assert.Equal(t, 15, PinVigor.Index())

	_, ok = PinTypeByIndex(16)
	assert.False(t, ok)
	assert.Equal(t, -1, PinType("Q").Index())

	pt, ok = ParsePinType(" 퍼 ")
	assert.True(t, ok)
	assert.Equal(t, PinPuzzle, pt)
	_, ok = ParsePinType("X")
	assert.False(t, ok)
}

func TestIdentityKeyPrecision(t *testing.T) {
	assert.Equal(t, "퀘_10.000_20.000", IdentityKey(PinRegionQuest, 10, 20))
	assert.Equal(t, IdentityKey(PinChest, 1.23449, 5), IdentityKey(PinChest, 1.2341, 5))
	assert.NotEqual(t, IdentityKey(PinChest, 1.234, 5), IdentityKey(PinChest, 1.235, 5))

	p := Pin{ID: "a", Type: PinSudden, X: 3.5, Y: 4.25, Comment: "ignored"}
	assert.Equal(t, "토_3.500_4.250", p.Key())
}

func TestPercentHelpers(t *testing.T) {
	assert.True(t, ValidPercent(0))
	assert.True(t, ValidPercent(100))
	assert.False(t, ValidPercent(100.01))
	assert.False(t, ValidPercent(math.NaN()))
	assert.False(t, ValidPercent(math.Inf(1)))

	assert.Equal(t, 0.0, ClampPercent(-3))
	assert.Equal(t, 100.0, ClampPercent(250))
	assert.Equal(t, 42.5, ClampPercent(42.5))

	assert.Equal(t, "", NormalizeComment(PinPotato, "hello"))
	assert.Equal(t, "hello", NormalizeComment(PinChest, "hello"))
}

func TestFindLocation(t *testing.T) {
	loc, ok := FindLocation(DefaultLocationID)
	assert.True(t, ok)
	assert.Equal(t, "오르비스 왕성", loc.Name)

	_, ok = FindLocation("nowhere")
	assert.False(t, ok)
}
