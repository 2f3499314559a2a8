package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencam/ov9281"
)

func TestParseOnOff(t *testing.T) {
	for _, s := range []string{"on", "1", "true", "start", " ON "} {
		v, err := parseOnOff(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"off", "0", "false", "stop"} {
		v, err := parseOnOff(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}

	_, err := parseOnOff("maybe")
	assert.Error(t, err)
}

func TestControlNames(t *testing.T) {
	assert.Len(t, controlNames, 7)
	assert.Equal(t, ov9281.ControlExposure, controlNames["exposure"])
	assert.Equal(t, ov9281.ControlAnalogGain, controlNames["analog-gain"])
	assert.Equal(t, ov9281.ControlVBlank, controlNames["vblank"])
	assert.Equal(t, ov9281.ControlTestPattern, controlNames["test-pattern"])
}

func TestStateDocJSON(t *testing.T) {
	doc := stateDoc{
		Format: formatState{Width: 1280, Height: 800, Code: "0x200a"},
		Controls: map[string]controlState{
			"exposure": {Value: 800, Min: 4, Max: 906, Step: 1, Default: 800},
		},
		Streaming:    true,
		TestPatterns: []string{"Disabled"},
	}

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"format": {"width": 1280, "height": 800, "code": "0x200a"},
		"controls": {
			"exposure": {"value": 800, "min": 4, "max": 906, "step": 1, "default": 800}
		},
		"streaming": true,
		"powered": false,
		"test_patterns": ["Disabled"]
	}`, string(b))
}
