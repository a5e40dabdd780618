// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText converts raw file bytes to NFC-normalised UTF-8.
//
// A UTF-8 or UTF-16 byte order mark selects the encoding; otherwise valid
// UTF-8 is taken as-is and anything else is read as Windows-1252, the usual
// encoding of legacy office exports.
func decodeText(data []byte) string {
	var decoded []byte

	switch {
	case bytes.HasPrefix(data, bomUTF8):
		decoded = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return ""
		}
		decoded = out
	case utf8.Valid(data):
		decoded = data
	default:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return string(bytes.ToValidUTF8(data, []byte("�")))
		}
		decoded = out
	}

	return norm.NFC.String(string(decoded))
}
