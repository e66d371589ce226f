package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferTypes(t *testing.T) {
	types, err := InferTypes([]string{"fmiReal", "fmiInteger", "fmiBoolean", "fmiString"})
	require.NoError(t, err)
	assert.Equal(t, []SimulationDataType{Real, Integer, Boolean, String}, types)

	types, err = InferTypes(nil)
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestInferTypes_Unknown(t *testing.T) {
	tests := []string{"", "fmireal", "Real", "fmiEnumeration"}
	for _, token := range tests {
		t.Run(token, func(t *testing.T) {
			_, err := InferTypes([]string{"fmiReal", token})
			assert.ErrorIs(t, err, ErrUnknownTypeToken)
		})
	}
}

func TestSimulationDataType_Names(t *testing.T) {
	tests := []struct {
		typ   SimulationDataType
		name  string
		token string
	}{
		{Real, "REAL", "fmiReal"},
		{Integer, "INTEGER", "fmiInteger"},
		{Boolean, "BOOLEAN", "fmiBoolean"},
		{String, "STRING", "fmiString"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.typ.Valid())
			assert.Equal(t, tt.name, tt.typ.String())
			assert.Equal(t, tt.token, tt.typ.Token())

			text, err := tt.typ.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.name, string(text))
		})
	}
}

func TestSimulationDataType_Invalid(t *testing.T) {
	bad := SimulationDataType(0)
	assert.False(t, bad.Valid())
	assert.Equal(t, "", bad.Token())
	assert.Equal(t, "SimulationDataType(0)", bad.String())
	_, err := bad.MarshalText()
	assert.Error(t, err)
}
