package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextProjectID(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "P2024001", NextProjectID(nil, now))
	assert.Equal(t, "P2024004", NextProjectID([]string{"P2024001", "P2024003", "P2023009"}, now))
	assert.Equal(t, "P2024001", NextProjectID([]string{"P2023042", "legacy-7", "P2024abc"}, now))
	assert.Equal(t, "P20241000", NextProjectID([]string{"P2024999"}, now))
}

func TestHistoryID(t *testing.T) {
	ts := time.Date(2024, 6, 1, 9, 5, 59, 0, time.FixedZone("x", 2*3600))
	assert.Equal(t, "P2024001_20240601_0705", HistoryID("P2024001", ts))
}

func TestNewItemID(t *testing.T) {
	a, b := NewItemID(), NewItemID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[0-9a-z]+$`, a)
}
