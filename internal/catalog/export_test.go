package catalog

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var sampleRows = []ExportRow{
	{ID: 2, OriginalName: "Harbour at dusk", Tags: "boats, sea"},
	{ID: 1, OriginalName: "Old town, north gate", Tags: ""},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Image ID", "Image Name", "Tags"}, records[0])
	assert.Equal(t, []string{"2", "Harbour at dusk", "boats, sea"}, records[1])
	assert.Equal(t, []string{"1", "Old town, north gate", ""}, records[2])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Image ID", "Image Name", "Tags"}, rows[0])
	assert.Equal(t, "Harbour at dusk", rows[1][1])
	assert.Equal(t, "2", rows[1][0])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, "export_images.xlsx", f.Filename())

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}
