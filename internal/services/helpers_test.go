package services

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/storage"
	"github.com/Corphon/DragonSwordMap/internal/utils"
)

var testNow = time.Date(2024, time.January, 10, 15, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("local-%03d", n)
	}
}

func newTestPinService(t *testing.T, store storage.KeyValueStore) *PinService {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	s := NewPinService(store,
		WithPinClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs()),
		WithPinLogger(utils.NewLogger(io.Discard, utils.DEBUG)),
	)
	require.NoError(t, s.Hydrate())
	return s
}

func mustCreate(t *testing.T, s *PinService, pt models.PinType, x, y float64, comment string) models.Pin {
	t.Helper()
	p, err := s.Create(pt, x, y, comment)
	require.NoError(t, err)
	return p
}
