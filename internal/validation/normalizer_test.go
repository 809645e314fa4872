package validation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labdash/internal/models"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    float64
		wantErr bool
	}{
		{name: "comma decimal", raw: "150,5", want: 150.5},
		{name: "dot decimal", raw: "150.5", want: 150.5},
		{name: "integer text", raw: "42", want: 42},
		{name: "padded text", raw: "  7.25 ", want: 7.25},
		{name: "negative", raw: "-0,5", want: -0.5},
		{name: "exponent", raw: "1.5e2", want: 150},
		{name: "json number", raw: json.Number("145.2"), want: 145.2},
		{name: "float", raw: 3.3, want: 3.3},
		{name: "int", raw: 9, want: 9},
		{name: "multiple separators", raw: "150,5,2", wantErr: true},
		{name: "mixed separators", raw: "1.500,5", wantErr: true},
		{name: "word", raw: "bad", wantErr: true},
		{name: "trailing unit", raw: "12mg", wantErr: true},
		{name: "hex", raw: "0x10", wantErr: true},
		{name: "infinity word", raw: "inf", wantErr: true},
		{name: "overflow", raw: "1e400", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "nil", raw: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeValue(tt.raw)
			if tt.wantErr {
				var fieldErr *models.FieldError
				require.ErrorAs(t, err, &fieldErr)
				assert.Equal(t, "dato", fieldErr.Field)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	jan10 := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     any
		want    time.Time
		wantErr bool
	}{
		{name: "iso", raw: "2025-01-10", want: jan10},
		{name: "iso slashes", raw: "2025/01/10", want: jan10},
		{name: "with time", raw: "2025-01-10 14:30:00", want: jan10},
		{name: "rfc3339", raw: "2025-01-10T23:59:59Z", want: jan10},
		{name: "day first", raw: "10/01/2025", want: jan10},
		{name: "day first dashes", raw: "10-01-2025", want: jan10},
		{name: "compact", raw: "20250110", want: jan10},
		{name: "excel serial number", raw: 45667.0, want: jan10},
		{name: "excel serial text", raw: "45667", want: jan10},
		{name: "time value", raw: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC), want: jan10},
		{name: "impossible day", raw: "2025-02-30", wantErr: true},
		{name: "garbage", raw: "yesterday", wantErr: true},
		{name: "empty", raw: " ", wantErr: true},
		{name: "serial out of range", raw: -4.0, wantErr: true},
		{name: "bare year", raw: "2025", wantErr: true},
		{name: "stripped day first", raw: "1012025", wantErr: true},
		{name: "text serial before 1990", raw: "12000", wantErr: true},
		{name: "json serial", raw: json.Number("45667"), want: jan10},
		{name: "json bare year", raw: json.Number("2025"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.raw)
			if tt.wantErr {
				var fieldErr *models.FieldError
				require.ErrorAs(t, err, &fieldErr)
				assert.Equal(t, "fecha", fieldErr.Field)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestNormalizeFields_OptionalText(t *testing.T) {
	physico, err := ProfileFor(models.CategoryPhysicochem)
	require.NoError(t, err)

	t.Run("null note is absent", func(t *testing.T) {
		for _, raw := range []any{nil, "", "null", "NULL", "NaN", "  "} {
			fields, err := NormalizeFields(RawRow{"fecha": "2025-01-10", "dato": "1", "nota": raw}, physico)
			require.NoError(t, err)
			assert.Nil(t, fields.Note, "raw note %#v", raw)
		}
	})

	t.Run("notas alias is trimmed", func(t *testing.T) {
		fields, err := NormalizeFields(RawRow{"fecha": "2025-01-10", "dato": "1", "notas": "  repeat sample "}, physico)
		require.NoError(t, err)
		require.NotNil(t, fields.Note)
		assert.Equal(t, "repeat sample", *fields.Note)
	})

	t.Run("parameter upper-cased and sub type defaulted", func(t *testing.T) {
		fields, err := NormalizeFields(RawRow{"fecha": "2025-01-10", "dato": "1", "parametro": " sílice "}, physico)
		require.NoError(t, err)
		require.NotNil(t, fields.Parameter)
		assert.Equal(t, "SÍLICE", *fields.Parameter)
		require.NotNil(t, fields.SubType)
		assert.Equal(t, DefaultSubType, *fields.SubType)
	})

	t.Run("explicit sub type lower-cased", func(t *testing.T) {
		fields, err := NormalizeFields(RawRow{"fecha": "2025-01-10", "dato": "1", "tipo": "Vapor"}, physico)
		require.NoError(t, err)
		assert.Equal(t, "vapor", *fields.SubType)
	})

	t.Run("coded schema has no parameter or sub type", func(t *testing.T) {
		ph, err := ProfileFor(models.CategoryPH)
		require.NoError(t, err)

		fields, err := NormalizeFields(RawRow{"fecha": "2025-01-10", "dato": "7", "parametro": "x", "tipo": "vapor"}, ph)
		require.NoError(t, err)
		assert.Nil(t, fields.Parameter)
		assert.Nil(t, fields.SubType)
	})
}

func TestNormalizeFields_DateCheckedBeforeValue(t *testing.T) {
	ph, err := ProfileFor(models.CategoryPH)
	require.NoError(t, err)

	_, err = NormalizeFields(RawRow{"fecha": "nope", "dato": "bad"}, ph)
	var fieldErr *models.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "fecha", fieldErr.Field)
}
