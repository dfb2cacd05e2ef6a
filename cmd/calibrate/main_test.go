package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, "videos/board.csv", defaultOutput("videos/board.MOV"))
	assert.Equal(t, "board.csv", defaultOutput("board.mp4"))
	assert.Equal(t, "board.v2.csv", defaultOutput("board.v2.mov"))
}
