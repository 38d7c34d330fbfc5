package tabular

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported on Table.Encoding.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-bom"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingLatin1  = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// toUTF8 converts text exported by common spreadsheet tools into UTF-8.
//
// Detection order: byte order mark, BOM-less UTF-16 (NUL-heavy input),
// valid UTF-8, then Windows-1252 as the fallback for legacy exports. The
// Windows-1252 decoder maps every byte, so the fallback never fails.
func toUTF8(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], EncodingUTF8BOM, nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeWith(data, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), EncodingUTF16LE)
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(data, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), EncodingUTF16BE)
	}

	if order, ok := sniffUTF16(data); ok {
		if order == unicode.LittleEndian {
			return decodeWith(data, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), EncodingUTF16LE)
		}
		return decodeWith(data, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), EncodingUTF16BE)
	}

	if utf8.Valid(data) {
		return data, EncodingUTF8, nil
	}

	return decodeWith(data, charmap.Windows1252, EncodingLatin1)
}

func decodeWith(data []byte, enc encoding.Encoding, name string) ([]byte, string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", name, err)
	}
	return out, name, nil
}

// sniffUTF16 looks for the alternating NUL pattern ASCII text has when
// encoded as UTF-16 without a byte order mark.
func sniffUTF16(data []byte) (unicode.Endianness, bool) {
	n := len(data)
	if n > 512 {
		n = 512
	}
	if n < 4 {
		return unicode.BigEndian, false
	}

	var evenNUL, oddNUL int
	for i := 0; i < n; i++ {
		if data[i] != 0 {
			continue
		}
		if i%2 == 0 {
			evenNUL++
		} else {
			oddNUL++
		}
	}

	half := n / 2
	switch {
	case oddNUL > half*3/4 && evenNUL == 0:
		return unicode.LittleEndian, true
	case evenNUL > half*3/4 && oddNUL == 0:
		return unicode.BigEndian, true
	}
	return unicode.BigEndian, false
}
