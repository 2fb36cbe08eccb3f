package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEditBuffer_FillsDefaultsAndCopies(t *testing.T) {
	src := sampleDataset()
	buf := NewEditBuffer(src)

	snap := buf.Snapshot()
	assert.Equal(t, 0.0, snap.Records[1].Fields["valuePerSqm"], "missing number field gets its default")

	src.Records[0].Fields["areaName"] = "mutated"
	assert.Equal(t, "Main Bazaar", buf.Snapshot().Records[0].Fields["areaName"])

	snap.Records[0].Fields["areaName"] = "mutated"
	assert.Equal(t, "Main Bazaar", buf.Snapshot().Records[0].Fields["areaName"], "snapshots are copies")
}

func TestEditBuffer_SetField(t *testing.T) {
	buf := NewEditBuffer(sampleDataset())

	require.NoError(t, buf.SetField("r1", "valuePerSqm", "2750.5"))
	require.NoError(t, buf.SetField("r1", "areaName", 42.0))
	rec := buf.Snapshot().Records[0]
	assert.Equal(t, 2750.5, rec.Fields["valuePerSqm"])
	assert.Equal(t, "42", rec.Fields["areaName"])

	require.NoError(t, buf.SetField("r1", "valuePerSqm", "  "))
	assert.Equal(t, 0.0, buf.Snapshot().Records[0].Fields["valuePerSqm"], "blank number edit becomes zero")

	assert.ErrorIs(t, buf.SetField("r1", "valuePerSqm", "₹100"), ErrInvalidInput)
	assert.ErrorIs(t, buf.SetField("r1", "nope", "x"), ErrUnknownColumn)
	assert.ErrorIs(t, buf.SetField("missing", "areaName", "x"), ErrNotFound)
}

func TestEditBuffer_UpdateFields(t *testing.T) {
	buf := NewEditBuffer(sampleDataset())

	_, err := buf.UpdateFields("r1", map[string]any{"areaName": "North", "valuePerSqm": "abc"})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "Main Bazaar", buf.Snapshot().Records[0].Fields["areaName"], "rejected update changes nothing")

	rec, err := buf.UpdateFields("r1", map[string]any{"areaName": "North", "valuePerSqm": 10})
	require.NoError(t, err)
	assert.Equal(t, "North", rec.Fields["areaName"])
	assert.Equal(t, 10.0, rec.Fields["valuePerSqm"])

	_, err = buf.UpdateFields("nope", map[string]any{"areaName": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditBuffer_AddRecord(t *testing.T) {
	buf := NewEditBuffer(sampleDataset())

	rec, err := buf.AddRecord(map[string]any{"areaName": "New Colony"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "New Colony", rec.Fields["areaName"])
	assert.Equal(t, 0.0, rec.Fields["valuePerSqm"])

	snap := buf.Snapshot()
	require.Len(t, snap.Records, 3)
	assert.Equal(t, rec.ID, snap.Records[2].ID, "records append at the end")

	_, err = buf.AddRecord(map[string]any{"bogus": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)
	assert.Len(t, buf.Snapshot().Records, 3)
}

func TestEditBuffer_DeleteRecordKeepsOrder(t *testing.T) {
	d := sampleDataset()
	d.Records = append(d.Records, Record{ID: "r3", Fields: map[string]any{}})
	buf := NewEditBuffer(d)

	require.NoError(t, buf.DeleteRecord("r2"))
	snap := buf.Snapshot()
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "r1", snap.Records[0].ID)
	assert.Equal(t, "r3", snap.Records[1].ID)

	assert.ErrorIs(t, buf.DeleteRecord("r2"), ErrNotFound)
}

func TestEditBuffer_RenameColumnKeepsID(t *testing.T) {
	buf := NewEditBuffer(sampleDataset())

	require.NoError(t, buf.RenameColumn("areaName", "  Locality  "))
	col, ok := buf.Snapshot().Column("areaName")
	require.True(t, ok)
	assert.Equal(t, "Locality", col.Name)
	assert.Equal(t, "Main Bazaar", buf.Snapshot().Records[0].Fields["areaName"])

	assert.ErrorIs(t, buf.RenameColumn("areaName", " "), ErrInvalidInput)
	assert.ErrorIs(t, buf.RenameColumn("nope", "X"), ErrUnknownColumn)
}

func TestEditBuffer_AddColumnBackfills(t *testing.T) {
	buf := NewEditBuffer(sampleDataset())

	col, err := buf.AddColumn("Patta No", ColumnNumber)
	require.NoError(t, err)
	assert.Regexp(t, `^pattano_[0-9a-f-]{5}$`, col.ID)

	for _, rec := range buf.Snapshot().Records {
		assert.Equal(t, 0.0, rec.Fields[col.ID])
	}

	text, err := buf.AddColumn("Remarks", ColumnText)
	require.NoError(t, err)
	assert.Equal(t, "", buf.Snapshot().Records[0].Fields[text.ID])

	_, err = buf.AddColumn("", ColumnText)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = buf.AddColumn("Date", ColumnType("date"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, buf.Schema(), 4)
}

func TestEditBuffer_Replace(t *testing.T) {
	buf := NewEditBuffer(sampleDataset())
	schema := []ColumnSchema{{ID: "x_1", Name: "X", Type: ColumnText}}
	records := []Record{{ID: "n1", Fields: map[string]any{"x_1": "v"}}}

	buf.Replace(schema, records)
	records[0].Fields["x_1"] = "mutated"

	snap := buf.Snapshot()
	assert.Equal(t, "kovilpatti", snap.Key)
	assert.Equal(t, schema, snap.Schema)
	assert.Equal(t, "v", snap.Records[0].Fields["x_1"])
}

func TestEditBuffer_ReplaceWithEmptySchema(t *testing.T) {
	buf := NewEditBuffer(sampleDataset())
	buf.Replace([]ColumnSchema{}, []Record{})

	snap := buf.Snapshot()
	assert.NotNil(t, snap.Schema, "empty schema survives the copy")
	assert.Empty(t, snap.Schema)
	assert.NotNil(t, snap.Records)
	assert.NotNil(t, Dataset{}.Clone().Schema)
}
