package judge

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracewatch/tracewatch/internal/models"
)

func TestCoerceBoolean(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    bool
		wantErr bool
	}{
		{name: "native bool", raw: true, want: true},
		{name: "string true", raw: "true", want: true},
		{name: "string False", raw: "False", want: false},
		{name: "string pass", raw: "pass", want: true},
		{name: "padded string", raw: "  no ", want: false},
		{name: "garbage string", raw: "maybe", wantErr: true},
		{name: "number", raw: 1.0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, models.ValueTypeBoolean, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got.Bool)
			require.Equal(t, tt.want, *got.Bool)
		})
	}
}

func TestCoerceNumeric(t *testing.T) {
	got, err := Coerce(0.85, models.ValueTypeNumeric, nil)
	require.NoError(t, err)
	require.Equal(t, 0.85, *got.Number)

	got, err = Coerce("0.5", models.ValueTypeNumeric, nil)
	require.NoError(t, err)
	require.Equal(t, 0.5, *got.Number)

	_, err = Coerce("high", models.ValueTypeNumeric, nil)
	require.Error(t, err)

	_, err = Coerce(true, models.ValueTypeNumeric, nil)
	require.Error(t, err)
}

func TestCoerceCategorical(t *testing.T) {
	labels := []string{"excellent", "acceptable", "poor"}

	got, err := Coerce("acceptable", models.ValueTypeCategorical, labels)
	require.NoError(t, err)
	require.Equal(t, "acceptable", *got.Label)

	// Case-insensitive match normalizes to the declared label.
	got, err = Coerce("EXCELLENT", models.ValueTypeCategorical, labels)
	require.NoError(t, err)
	require.Equal(t, "excellent", *got.Label)

	_, err = Coerce("mediocre", models.ValueTypeCategorical, labels)
	require.ErrorContains(t, err, "not in the declared set")

	_, err = Coerce(3.0, models.ValueTypeCategorical, labels)
	require.Error(t, err)
}
