package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebsworthy/arcset/internal/errors"
	"github.com/bebsworthy/arcset/internal/protocol"
)

// TestParseEdge tests edge descriptor parsing
func TestParseEdge(t *testing.T) {
	tests := []struct {
		input    string
		expected protocol.Edge
		valid    bool
	}{
		{"1-2", protocol.Edge{From: 1, To: 2}, true},
		{"0-0", protocol.Edge{From: 0, To: 0}, true},
		{"10-007", protocol.Edge{From: 10, To: 7}, true},
		{"2147483647-0", protocol.Edge{From: 2147483647, To: 0}, true},
		{"abc", protocol.Edge{}, false},
		{"", protocol.Edge{}, false},
		{"1", protocol.Edge{}, false},
		{"1-", protocol.Edge{}, false},
		{"-1", protocol.Edge{}, false},
		{"-1-2", protocol.Edge{}, false},
		{"1--2", protocol.Edge{}, false},
		{"1-2x", protocol.Edge{}, false},
		{"1-2-3", protocol.Edge{}, false},
		{"+1-2", protocol.Edge{}, false},
		{" 1-2", protocol.Edge{}, false},
		{"1:2", protocol.Edge{}, false},
		{"2147483648-0", protocol.Edge{}, false},
		{"1-99999999999999999999", protocol.Edge{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			edge, err := ParseEdge(tt.input)
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, edge)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrUsage)
			assert.Equal(t, errors.ExitUsage, errors.ExitCode(err))
		})
	}
}

// TestParseEdges tests parsing of a whole argument list
func TestParseEdges(t *testing.T) {
	edges, err := ParseEdges([]string{"0-1", "1-2", "2-0"})
	require.NoError(t, err)
	assert.Equal(t, []protocol.Edge{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 0}}, edges)

	_, err = ParseEdges(nil)
	assert.ErrorIs(t, err, errors.ErrUsage)

	_, err = ParseEdges([]string{"0-1", "oops"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"oops"`)
}
