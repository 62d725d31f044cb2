package sheets_tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftware/workspace-mcp/internal/sheets"
)

func TestParseValues(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    [][]any
		wantErr bool
	}{
		{
			name: "single row",
			raw:  `[["a", "b"]]`,
			want: [][]any{{"a", "b"}},
		},
		{
			name: "mixed types",
			raw:  `[["name", 42, true]]`,
			want: [][]any{{"name", float64(42), true}},
		},
		{
			name: "multiple rows",
			raw:  `[["a"], ["b"], ["c"]]`,
			want: [][]any{{"a"}, {"b"}, {"c"}},
		},
		{
			name:    "missing",
			raw:     nil,
			wantErr: true,
		},
		{
			name:    "empty string",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "not an array of rows",
			raw:     `["a", "b"]`,
			wantErr: true,
		},
		{
			name:    "empty array",
			raw:     `[]`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			raw:     `[["a"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, errResult := parseValues(tt.raw)
			if tt.wantErr {
				require.NotNil(t, errResult)
				return
			}
			require.Nil(t, errResult)
			assert.Equal(t, tt.want, values)
		})
	}
}

func TestInputOptionFromArgs(t *testing.T) {
	assert.Equal(t, sheets.InputUserEntered, inputOptionFromArgs(map[string]interface{}{}))
	assert.Equal(t, sheets.InputUserEntered, inputOptionFromArgs(map[string]interface{}{"raw": false}))
	assert.Equal(t, sheets.InputUserEntered, inputOptionFromArgs(map[string]interface{}{"raw": "yes"}))
	assert.Equal(t, sheets.InputRaw, inputOptionFromArgs(map[string]interface{}{"raw": true}))
}
