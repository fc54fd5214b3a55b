package runboard_test

import (
	"encoding/json"
	"testing"

	runboard "github.com/goliatone/go-runboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldDistinguishesMissingNullAndValue(t *testing.T) {
	type payload struct {
		Name runboard.Field[string] `json:"name"`
		Info runboard.Field[string] `json:"info"`
	}

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Mario Kart 8","info":null}`), &p))

	assert.True(t, p.Name.Set)
	assert.False(t, p.Name.Null)
	assert.Equal(t, "Mario Kart 8", p.Name.Value)

	// explicit null: present but cleared
	assert.True(t, p.Info.Set)
	assert.True(t, p.Info.Null)

	// absent key: untouched
	var empty payload
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.False(t, empty.Name.Set)
	assert.False(t, empty.Info.Set)
}

func TestFieldMarshalRoundTrip(t *testing.T) {
	raw, err := json.Marshal(runboard.FieldOf("speedrun"))
	require.NoError(t, err)
	assert.Equal(t, `"speedrun"`, string(raw))

	raw, err = json.Marshal(runboard.NullField[string]())
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}
