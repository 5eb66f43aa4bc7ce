package tabular

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testTable = []ColumnSpec{
	{Source: "src_id", Target: "id", Kind: KindRaw},
	{Source: "note", Target: "note", Kind: KindSmartText},
	{Source: "seen_at", Target: "seen_at", Kind: KindDatetime},
}

func TestNormalizeRenamesAndCleans(t *testing.T) {
	rows, err := Normalize([]Record{
		{"src_id": "42", "note": "it's 'fine'", "seen_at": "2024-03-01 09:30:00", "extra": "dropped"},
	}, testTable)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.Equal(t, "42", rows[0].Get("id"))
	require.Equal(t, "it’s ‘fine’", rows[0].Get("note"))
	require.Equal(t, "2024-03-01T09:30:00Z", rows[0].Get("seen_at"))
	require.Equal(t, "", rows[0].Get("extra"))
}

func TestNormalizeMissingColumnsBecomeEmpty(t *testing.T) {
	rows, err := Normalize([]Record{{"src_id": "1"}}, testTable)
	require.NoError(t, err)
	require.Equal(t, "", rows[0].Get("note"))
	require.Equal(t, "", rows[0].Get("seen_at"))
	require.True(t, rows[0].Time("seen_at").IsZero())
}

func TestNormalizeBadDatetimeIsFatal(t *testing.T) {
	_, err := Normalize([]Record{
		{"src_id": "1", "seen_at": "not a date"},
	}, testTable)
	require.Error(t, err)

	var shapeErr *DataShapeError
	require.ErrorAs(t, err, &shapeErr)
	require.Equal(t, "seen_at", shapeErr.Column)
}

func TestParseDatetimeLayouts(t *testing.T) {
	for _, in := range []string{
		"2024-03-01T09:30:00Z",
		"2024-03-01T09:30:00.123456Z",
		"2024-03-01T09:30:00",
		"2024-03-01 09:30:00.123456",
		"2024-03-01 09:30:00",
	} {
		parsed, err := ParseDatetime(in)
		require.NoError(t, err, in)
		require.Equal(t, 2024, parsed.Year(), in)
	}

	dateOnly, err := ParseDatetime("2024-03-01")
	require.NoError(t, err)
	require.Equal(t, "2024-03-01T00:00:00Z", dateOnly.Format("2006-01-02T15:04:05Z07:00"))
}
