package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportai-inc/reportai-engine/pkg/models"
)

func TestInferColumn_Types(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   models.DataType
	}{
		{"integers", []string{"1", "42", "-7"}, models.DataTypeInteger},
		{"decimals", []string{"1.5", "2.25", "3"}, models.DataTypeDecimal},
		{"booleans", []string{"true", "false", "true"}, models.DataTypeBoolean},
		{"dates", []string{"2024-01-15", "2024-02-20"}, models.DataTypeDate},
		{"datetimes", []string{"2024-01-15 10:30:00", "2024-02-20 08:00:00"}, models.DataTypeDatetime},
		{"times", []string{"10:30:00", "23:59:59"}, models.DataTypeTime},
		{"emails", []string{"a@example.com", "b@example.org"}, models.DataTypeEmail},
		{"urls", []string{"https://example.com", "http://example.org/page"}, models.DataTypeURL},
		{"currency", []string{"$1,200.50", "$99", "€42.00"}, models.DataTypeCurrency},
		{"percentages", []string{"15%", "99.5%"}, models.DataTypePercentage},
		{"uuids", []string{"550e8400-e29b-41d4-a716-446655440000", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}, models.DataTypeIdentifier},
		{"free text", []string{"the quarterly report", "some longer note", "another one", "more words"}, models.DataTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := inferColumn("col", tt.values)
			assert.Equal(t, tt.want, col.DataType)
		})
	}
}

func TestInferColumn_Categorical(t *testing.T) {
	values := []string{"active", "inactive", "active", "active", "inactive", "pending", "active", "pending"}
	col := inferColumn("status", values)
	assert.Equal(t, models.DataTypeCategorical, col.DataType)
	assert.Equal(t, int64(3), col.Statistics.UniqueCount)
}

func TestInferColumn_Nullability(t *testing.T) {
	col := inferColumn("score", []string{"1", "", "3", "  "})
	assert.True(t, col.IsNullable)
	assert.Equal(t, models.DataTypeInteger, col.DataType)
	assert.Equal(t, int64(2), col.Statistics.NullCount)
	assert.Equal(t, int64(4), col.Statistics.Count)

	full := inferColumn("id", []string{"1", "2", "3"})
	assert.False(t, full.IsNullable)
	assert.True(t, full.IsUnique)
}

func TestInferColumn_NumericStats(t *testing.T) {
	col := inferColumn("amount", []string{"10", "20", "30"})
	require.NotNil(t, col.Statistics.Min)
	require.NotNil(t, col.Statistics.Max)
	require.NotNil(t, col.Statistics.Avg)
	assert.Equal(t, 10.0, *col.Statistics.Min)
	assert.Equal(t, 30.0, *col.Statistics.Max)
	assert.Equal(t, 20.0, *col.Statistics.Avg)
}

func TestInferColumn_SampleValuesCapped(t *testing.T) {
	values := []string{"aaaa", "bbbb", "cccc", "dddd", "eeee", "ffff", "gggg", "aaaa"}
	col := inferColumn("words", values)
	assert.Len(t, col.SampleValues, maxSampleValues)
	// Duplicates are not repeated in samples.
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc", "dddd", "eeee"}, col.SampleValues)
}

func TestInferColumn_AllEmpty(t *testing.T) {
	col := inferColumn("blank", []string{"", "", ""})
	assert.Equal(t, models.DataTypeUnknown, col.DataType)
	assert.True(t, col.IsNullable)
}
