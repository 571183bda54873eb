package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	frame, err := parseLine(`join_room {"roomId":"abc123","name":"Bob"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_room","payload":{"roomId":"abc123","name":"Bob"}}`, string(frame))

	frame, err = parseLine("  ping  ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","payload":{}}`, string(frame))

	_, err = parseLine(`join_room {"roomId":`)
	assert.Error(t, err)

	_, err = parseLine("   ")
	assert.Error(t, err)
}
