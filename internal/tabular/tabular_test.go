package tabular

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// =============================================================================
// CSV
// =============================================================================

func TestDecode_CSV(t *testing.T) {
	data := []byte("Name,Email,Phone\nAlice Smith,alice@x.com,555-123-4567\n,,\nBob,bob@x.com\n")

	tbl, err := Decode("people.csv", data)
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, tbl.Format)
	assert.Equal(t, EncodingUTF8, tbl.Encoding)
	assert.Equal(t, []string{"Name", "Email", "Phone"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2, "blank rows are skipped")
	assert.Equal(t, "Alice Smith", tbl.Rows[0]["Name"])
	assert.Equal(t, "", tbl.Rows[1]["Phone"], "short rows are padded")
}

func TestDecode_Delimiters(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"semicolon", "Name;Email\nAlice;alice@x.com\n"},
		{"tab", "Name\tEmail\nAlice\talice@x.com\n"},
		{"comma with quoted semicolons", "\"Name;x\",Email\nAlice,alice@x.com\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Decode("f.csv", []byte(tt.data))
			require.NoError(t, err)
			require.Len(t, tbl.Headers, 2)
			require.Len(t, tbl.Rows, 1)
			assert.Equal(t, "alice@x.com", tbl.Rows[0]["Email"])
		})
	}
}

func TestDecode_Encodings(t *testing.T) {
	text := "Name,Company\nJosé Núñez,Acmé\n"

	latin1, err := charmap.Windows1252.NewEncoder().String(text)
	require.NoError(t, err)

	utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(text)
	require.NoError(t, err)

	noBOM16, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(text)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		enc  string
	}{
		{"utf-8", []byte(text), EncodingUTF8},
		{"utf-8 bom", append([]byte{0xEF, 0xBB, 0xBF}, text...), EncodingUTF8BOM},
		{"windows-1252", []byte(latin1), EncodingLatin1},
		{"utf-16le bom", []byte(utf16le), EncodingUTF16LE},
		{"utf-16le no bom", []byte(noBOM16), EncodingUTF16LE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Decode("people.csv", tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.enc, tbl.Encoding)
			assert.Equal(t, []string{"Name", "Company"}, tbl.Headers)
			require.Len(t, tbl.Rows, 1)
			assert.Equal(t, "José Núñez", tbl.Rows[0]["Name"])
			assert.Equal(t, "Acmé", tbl.Rows[0]["Company"])
		})
	}
}

func TestSniffUTF16(t *testing.T) {
	le, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String("Name,Email\n")
	require.NoError(t, err)
	be, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().String("Name,Email\n")
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   []byte
		ok     bool
		endian unicode.Endianness
	}{
		{"little endian", []byte(le), true, unicode.LittleEndian},
		{"big endian", []byte(be), true, unicode.BigEndian},
		{"plain ascii", []byte("Name,Email\n"), false, unicode.BigEndian},
		{"too short", []byte{'N', 0}, false, unicode.BigEndian},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endian, ok := sniffUTF16(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.endian, endian)
		})
	}
}

func TestDecode_Headers(t *testing.T) {
	data := []byte("Name,,Email,email,\nAlice,x,a@x.com,b@x.com,\n")

	tbl, err := Decode("f.csv", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Column 2", "Email", "email (2)"}, tbl.Headers)
	assert.Equal(t, "b@x.com", tbl.Rows[0]["email (2)"])
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want error
	}{
		{"empty", "f.csv", nil, ErrEmptyFile},
		{"whitespace", "f.csv", []byte("  \n\n"), ErrEmptyFile},
		{"blank headers", "f.csv", []byte(",,\nAlice,,\n"), ErrNoHeaders},
		{"binary", "f.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.file, tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// =============================================================================
// XLSX
// =============================================================================

func TestDecode_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Name", "Email"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Alice", "alice@x.com"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"Bob"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tbl, err := Decode("people.xlsx", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, tbl.Format)
	assert.Equal(t, sheet, tbl.Sheet)
	assert.Equal(t, []string{"Name", "Email"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "alice@x.com", tbl.Rows[0]["Email"])
	assert.Equal(t, "", tbl.Rows[1]["Email"])
}

// =============================================================================
// Templates
// =============================================================================

func TestWriteTemplates(t *testing.T) {
	headers := []string{"Type", "Name", "Emails"}

	var csvBuf bytes.Buffer
	require.NoError(t, WriteCSVTemplate(&csvBuf, headers))
	assert.Equal(t, "Type,Name,Emails\n", csvBuf.String())

	var xlsxBuf bytes.Buffer
	require.NoError(t, WriteXLSXTemplate(&xlsxBuf, headers))
	tbl, err := Decode("template.xlsx", xlsxBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, headers, tbl.Headers)
	assert.Empty(t, tbl.Rows)
}

// =============================================================================
// CleanCell
// =============================================================================

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello  ", "hello"},
		{"=\"00123\"", "00123"},
		{"\uFEFFName", "Name"},
		{"=SUM(A1)", "=SUM(A1)"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanCell(tt.in))
		})
	}
}
