package focus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

func entries(ids ...domain.CellID) []domain.VisualHotspot {
	out := make([]domain.VisualHotspot, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.VisualHotspot{
			RankedHotspot: domain.RankedHotspot{Rank: i, CellID: id, Count: uint64(len(ids) - i)},
			Origin:        domain.OriginLocal,
		})
	}
	return out
}

func TestController_StartsUnfocused(t *testing.T) {
	c := NewController()
	_, ok := c.Current(entries("a", "b"))
	assert.False(t, ok)
	assert.False(t, c.State().Focused)

	_, changed := c.Reconcile(nil)
	assert.False(t, changed)
	assert.False(t, c.State().Focused)
}

func TestController_InitialFocusExactlyOnce(t *testing.T) {
	c := NewController()

	tr, changed := c.Reconcile(entries("a", "b"))
	require.True(t, changed)
	assert.Equal(t, Transition{To: "a", Reason: ReasonInitial}, tr)

	// A new leader does not steal the focus while "a" is still present.
	_, changed = c.Reconcile(entries("b", "a"))
	assert.False(t, changed)

	got, ok := c.Current(entries("b", "a"))
	require.True(t, ok)
	assert.Equal(t, domain.CellID("a"), got.CellID)
	assert.False(t, c.State().UserSelected)
}

func TestController_SelectOverridesAndSticks(t *testing.T) {
	c := NewController()
	c.Reconcile(entries("a", "b", "c"))

	tr, ok := c.Select("c", entries("a", "b", "c"))
	require.True(t, ok)
	assert.Equal(t, Transition{From: "a", To: "c", Reason: ReasonUser}, tr)

	_, changed := c.Reconcile(entries("a", "b", "c"))
	assert.False(t, changed)

	st := c.State()
	assert.Equal(t, domain.CellID("c"), st.CellID)
	assert.True(t, st.UserSelected)
}

func TestController_SelectUnknownIsNoop(t *testing.T) {
	c := NewController()
	c.Reconcile(entries("a", "b"))

	_, ok := c.Select("zzz", entries("a", "b"))
	assert.False(t, ok)

	got, found := c.Current(entries("a", "b"))
	require.True(t, found)
	assert.Equal(t, domain.CellID("a"), got.CellID)
}

func TestController_SelectBeforeAnyFocus(t *testing.T) {
	c := NewController()
	_, ok := c.Select("b", entries("a", "b"))
	require.True(t, ok)

	_, changed := c.Reconcile(entries("a", "b"))
	assert.False(t, changed)
	assert.Equal(t, domain.CellID("b"), c.State().CellID)
}

func TestController_FallbackWhenFocusedCellDisappears(t *testing.T) {
	c := NewController()
	c.Reconcile(entries("a", "b"))
	c.Select("b", entries("a", "b"))

	// Source reset: the set is empty for a while, the focus is kept.
	_, changed := c.Reconcile(nil)
	assert.False(t, changed)
	assert.True(t, c.State().Focused)
	assert.Equal(t, domain.CellID("b"), c.State().CellID)
	_, ok := c.Current(nil)
	assert.False(t, ok)

	tr, changed := c.Reconcile(entries("x", "y"))
	require.True(t, changed)
	assert.Equal(t, Transition{From: "b", To: "x", Reason: ReasonFallback}, tr)
	assert.False(t, c.State().UserSelected)
}

func TestController_ConcurrentSelectsLastWriterWins(t *testing.T) {
	c := NewController()
	all := entries("a", "b", "c", "d")
	c.Reconcile(all)

	var wg sync.WaitGroup
	for _, e := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Select(e.CellID, all)
				c.Reconcile(all)
			}
		}()
	}
	wg.Wait()

	st := c.State()
	assert.True(t, st.Focused)
	assert.True(t, st.UserSelected)
	assert.Contains(t, []domain.CellID{"a", "b", "c", "d"}, st.CellID)
}
