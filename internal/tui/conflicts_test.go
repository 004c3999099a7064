package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/inward-bound/internal/model"
)

func testConflicts() []model.FieldConflict {
	detected := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)
	return []model.FieldConflict{
		{ID: "c1", Reference: "FIRC1", Field: "amount", StoredValue: "100", IncomingValue: "200", DetectedAt: detected},
		{ID: "c2", Reference: "FIRC2", Field: "currency", StoredValue: "USD", IncomingValue: "EUR", DetectedAt: detected},
	}
}

func TestViewListsConflicts(t *testing.T) {
	m := NewModel(context.Background(), nil, testConflicts())

	view := m.View()
	assert.Contains(t, view, "FIRC1")
	assert.Contains(t, view, "FIRC2")
	assert.Contains(t, view, "keep stored")
}

func TestViewEmpty(t *testing.T) {
	m := NewModel(context.Background(), nil, nil)
	assert.Contains(t, m.View(), "No open conflicts")
}

func TestResolvedMessageRemovesRow(t *testing.T) {
	m := NewModel(context.Background(), nil, testConflicts())

	updated, _ := m.Update(conflictResolvedMsg{id: "c1"})
	next, ok := updated.(Model)
	require.True(t, ok)

	require.Len(t, next.conflicts, 1)
	assert.Equal(t, "c2", next.conflicts[0].ID)
	assert.NotContains(t, next.View(), "FIRC1")
}

func TestLastResolutionQuits(t *testing.T) {
	conflicts := testConflicts()[:1]
	m := NewModel(context.Background(), nil, conflicts)

	updated, cmd := m.Update(conflictResolvedMsg{id: "c1"})
	next, ok := updated.(Model)
	require.True(t, ok)

	assert.True(t, next.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestQuitKey(t *testing.T) {
	m := NewModel(context.Background(), nil, testConflicts())

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	next, ok := updated.(Model)
	require.True(t, ok)

	assert.True(t, next.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
