package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSplitList verifies comma-separated flag parsing.
func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"cheorwon", "yanggu"}, splitList("cheorwon, yanggu"))
	assert.Equal(t, []string{"cheorwon"}, splitList(" cheorwon ,,"))
	assert.Nil(t, splitList(""))
}
