package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnumValid(t *testing.T) {
	for _, s := range []IssueStatus{IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, IssueStatus("blocked").Valid())
	assert.False(t, IssueStatus("").Valid())

	for _, p := range []IssuePriority{IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityCritical} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, IssuePriority("urgent").Valid())

	for _, s := range []IssueSeverity{IssueSeverityMinor, IssueSeverityMajor, IssueSeverityCritical} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, IssueSeverity("catastrophic").Valid())
}

func TestValidTitle(t *testing.T) {
	assert.False(t, ValidTitle(""))
	assert.False(t, ValidTitle("ab"))
	assert.True(t, ValidTitle("abc"))
	assert.True(t, ValidTitle(strings.Repeat("x", TitleMaxLen)))
	assert.False(t, ValidTitle(strings.Repeat("x", TitleMaxLen+1)))
}

func TestValidTitle_CountsRunes(t *testing.T) {
	// Two runes, six bytes.
	assert.False(t, ValidTitle("日本"))
	assert.True(t, ValidTitle("日本語"))
	assert.True(t, ValidTitle(strings.Repeat("日", TitleMaxLen)))
	assert.False(t, ValidTitle(strings.Repeat("日", TitleMaxLen+1)))
}

func TestValidDescription(t *testing.T) {
	assert.False(t, ValidDescription(strings.Repeat("x", DescriptionMinLen-1)))
	assert.True(t, ValidDescription(strings.Repeat("x", DescriptionMinLen)))
	assert.True(t, ValidDescription(strings.Repeat("日", DescriptionMaxLen)))
	assert.False(t, ValidDescription(strings.Repeat("x", DescriptionMaxLen+1)))
}
