package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/pincsv"
	"github.com/Corphon/DragonSwordMap/internal/storage"
)

func storedPins(t *testing.T, store storage.KeyValueStore) []models.Pin {
	t.Helper()
	raw, ok, err := store.Get(storage.KeyCustomPins)
	require.NoError(t, err)
	require.True(t, ok)
	var pins []models.Pin
	require.NoError(t, json.Unmarshal([]byte(raw), &pins))
	return pins
}

func TestCreateAutosaves(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestPinService(t, store)

	p := mustCreate(t, s, models.PinChest, 12.5, 130, "bridge")

	assert.Equal(t, "local-001", p.ID)
	assert.Equal(t, 100.0, p.Y, "position is clamped")
	assert.Equal(t, testNow.UnixMilli(), p.CreatedAt)
	assert.Equal(t, []models.Pin{p}, storedPins(t, store))
}

func TestCreateRejectsUnknownCategory(t *testing.T) {
	s := newTestPinService(t, nil)

	_, err := s.Create("X", 1, 1, "")
	assert.True(t, apperrors.IsValidationError(err))
	assert.Zero(t, s.Len())
}

func TestCommentlessCategoryDropsComment(t *testing.T) {
	s := newTestPinService(t, nil)

	potato := mustCreate(t, s, models.PinPotato, 1, 1, "hello")
	assert.Empty(t, potato.Comment)

	quest := mustCreate(t, s, models.PinRegionQuest, 2, 2, "keep me")
	memory := models.PinMemory
	updated, err := s.Update(quest.ID, models.PinPatch{Type: &memory})
	require.NoError(t, err)
	assert.Empty(t, updated.Comment)

	comment := "still nothing"
	updated, err = s.Update(potato.ID, models.PinPatch{Comment: &comment})
	require.NoError(t, err)
	assert.Empty(t, updated.Comment)
}

func TestUpdateMissingIDIsNoop(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestPinService(t, store)
	p := mustCreate(t, s, models.PinChest, 1, 1, "a")

	comment := "b"
	_, err := s.Update("missing", models.PinPatch{Comment: &comment})
	assert.True(t, apperrors.IsNotFoundError(err))
	assert.Equal(t, []models.Pin{p}, storedPins(t, store))
}

func TestDeleteAndExplored(t *testing.T) {
	s := newTestPinService(t, nil)
	a := mustCreate(t, s, models.PinChest, 1, 1, "a")
	b := mustCreate(t, s, models.PinChest, 2, 2, "b")

	got, err := s.ToggleExplored(a.ID)
	require.NoError(t, err)
	assert.True(t, got.Explored)

	got, err = s.SetExplored(a.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Explored)

	require.NoError(t, s.Delete(a.ID))
	assert.True(t, apperrors.IsNotFoundError(s.Delete(a.ID)))

	remaining := s.Snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0].ID)
}

func TestQueryFilterAndAdminView(t *testing.T) {
	s := newTestPinService(t, nil)
	a := mustCreate(t, s, models.PinChest, 1, 1, "a")
	mustCreate(t, s, models.PinMarmot, 2, 2, "b")
	c := mustCreate(t, s, models.PinChest, 3, 3, "c")
	_, err := s.SetExplored(a.ID, true)
	require.NoError(t, err)

	chests := s.Query([]models.PinType{models.PinChest}, models.ModeUser)
	require.Len(t, chests, 2)
	assert.Equal(t, a.ID, chests[0].ID)
	assert.Equal(t, c.ID, chests[1].ID)
	assert.True(t, chests[0].Explored)

	assert.Len(t, s.Query(nil, models.ModeUser), 3)
	for _, p := range s.Query(nil, models.ModeAdmin) {
		assert.False(t, p.Explored)
	}
}

func TestMassActionDecision(t *testing.T) {
	s := newTestPinService(t, nil)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, mustCreate(t, s, models.PinSudden, float64(i), 1, "").ID)
	}
	mustCreate(t, s, models.PinBirdEgg, 5, 5, "")

	for _, id := range ids[:2] {
		_, err := s.SetExplored(id, true)
		require.NoError(t, err)
	}
	ma := s.MassAction(models.PinSudden)
	assert.Equal(t, models.MassActionComplete, ma.Action)
	assert.Equal(t, 3, ma.Total)
	assert.Equal(t, 2, ma.Explored)

	_, n, err := s.ExecuteMassAction(models.PinSudden)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ma = s.MassAction(models.PinSudden)
	assert.Equal(t, models.MassActionReset, ma.Action)

	_, n, err = s.ExecuteMassAction(models.PinSudden)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, models.MassActionNone, s.MassAction(models.PinPuzzle).Action, "no pins")
	assert.Equal(t, models.MassActionNone, s.MassAction(models.PinBirdEgg).Action, "not eligible")
}

func TestCounts(t *testing.T) {
	s := newTestPinService(t, nil)
	p := mustCreate(t, s, models.PinChest, 1, 1, "")
	mustCreate(t, s, models.PinChest, 2, 2, "")
	_, err := s.SetExplored(p.ID, true)
	require.NoError(t, err)

	counts := s.Counts()
	require.Len(t, counts, len(models.Categories))
	chest := counts[models.PinChest.Index()]
	assert.Equal(t, "상자", chest.Label)
	assert.Equal(t, 2, chest.Total)
	assert.Equal(t, 1, chest.Explored)
}

func TestImportDeduplicates(t *testing.T) {
	s := newTestPinService(t, nil)
	mustCreate(t, s, models.PinChest, 10, 10, "existing")

	records := []pincsv.Record{
		{Type: models.PinChest, X: 10, Y: 10},
		{Type: models.PinMarmot, Comment: "new", X: 20, Y: 20, Explored: true},
		{Type: models.PinMarmot, Comment: "dup in file", X: 20.0001, Y: 20},
	}
	res, err := s.Import(records)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Duplicates)
	assert.True(t, res.Pins[0].Explored)
	assert.Equal(t, 2, s.Len())

	_, err = s.Import(records)
	assert.True(t, apperrors.IsNothingToImportError(err))
}

func TestHydrateCorruptDataIsEmpty(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(storage.KeyCustomPins, "{not json"))

	s := newTestPinService(t, store)
	assert.Zero(t, s.Len())
}

func TestHydrateMigratesLegacyExplored(t *testing.T) {
	store := storage.NewMemoryStorage()
	pins := []models.Pin{
		{ID: "a", Type: models.PinChest, X: 1.5, Y: 2.25},
		{ID: "b", Type: models.PinChest, X: 3, Y: 4},
	}
	data, err := json.Marshal(pins)
	require.NoError(t, err)
	require.NoError(t, store.Set(storage.KeyCustomPins, string(data)))
	require.NoError(t, store.Set(storage.KeyFadedPins, `["아_1.500_2.250"]`))

	s := newTestPinService(t, store)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, got.Explored)
	got, _ = s.Get("b")
	assert.False(t, got.Explored)

	_, ok, err = store.Get(storage.KeyFadedPins)
	require.NoError(t, err)
	assert.False(t, ok, "legacy blob removed after migration")
	assert.True(t, storedPins(t, store)[0].Explored)
}

func TestResetExplored(t *testing.T) {
	s := newTestPinService(t, nil)
	for _, pt := range []models.PinType{models.PinRegionQuest, models.PinSudden, models.PinMarmot} {
		p := mustCreate(t, s, pt, 1, float64(pt.Index()), "")
		_, err := s.SetExplored(p.ID, true)
		require.NoError(t, err)
	}

	n, err := s.ResetExplored(models.WeeklyResetTypes)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts := s.Counts()
	assert.Equal(t, 0, counts[models.PinRegionQuest.Index()].Explored)
	assert.Equal(t, 0, counts[models.PinSudden.Index()].Explored)
	assert.Equal(t, 1, counts[models.PinMarmot.Index()].Explored)
}
