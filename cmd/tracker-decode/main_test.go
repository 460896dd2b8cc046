package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArgs(t *testing.T) {
	var out bytes.Buffer
	failed := decodeArgs(&out, log.New(io.Discard, "", 0), []string{
		"0000803f000000c011223344",
		"zz",
		"0102",
	})
	assert.Equal(t, 2, failed)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "0000803f000000c011223344", got["payload"])
	assert.Equal(t, true, got["has_location"])
	assert.InDelta(t, 1.0, got["lat"], 1e-9)
	assert.InDelta(t, -2.0, got["lng"], 1e-9)
	assert.InDelta(t, 0x11*8.0, got["alt"], 1e-9)
	assert.InDelta(t, 0x22*16.0, got["dist"], 1e-9)
	assert.InDelta(t, 0x33*2.0, got["alt_gain"], 1e-9)
	assert.InDelta(t, 0x44*16.0, got["max_speed"], 1e-9)
}

func TestDecodeWithoutLocation(t *testing.T) {
	rec, err := decode(make([]byte, 12))
	require.NoError(t, err)
	assert.False(t, rec.HasLocation)
	assert.Zero(t, rec.Distance)
}
