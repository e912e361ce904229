package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTable(t *testing.T) {
	table := NewSimpleTable("Variants", []string{"ID", "Suffix"})
	table.AddRow("ST", "ST")
	table.AddRow("CD", "CD_DDA_ST")

	view := table.View(PlainStyles())
	lines := strings.Split(strings.TrimRight(view, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Variants", lines[0])
	assert.Contains(t, lines[1], "ID")
	assert.True(t, strings.HasPrefix(lines[2], "---"))
	assert.Contains(t, lines[4], "CD_DDA_ST")

	// Columns line up.
	assert.Equal(t, strings.Index(lines[1], "|"), strings.Index(lines[3], "|"))
}

func TestSimpleTable_ShortRowsArePadded(t *testing.T) {
	table := NewSimpleTable("", []string{"A", "B", "C"})
	table.AddRow("1")
	view := table.View(PlainStyles())
	assert.Equal(t, 2, strings.Count(strings.Split(view, "\n")[2], "|"))
}

func TestSimpleTable_Empty(t *testing.T) {
	assert.Empty(t, NewSimpleTable("x", []string{"a"}).View(DefaultStyles()))
}

func TestDetectTheme(t *testing.T) {
	t.Setenv("COLORFGBG", "15;0")
	assert.True(t, DetectTheme().IsDark)

	t.Setenv("COLORFGBG", "")
	t.Setenv("DDA_DARK_MODE", "")
	assert.False(t, DetectTheme().IsDark)

	t.Setenv("DDA_DARK_MODE", "1")
	assert.True(t, DetectTheme().IsDark)
}
