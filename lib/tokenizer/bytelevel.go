// Copyright 2026 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tokenizer

// Byte-level BPE maps every raw byte to exactly one visible code point so
// that vocabulary pieces are printable even for bytes in the middle of a
// multi-byte UTF-8 character. Printable ASCII ('!'..'~') and two Latin-1
// ranges map to themselves; the remaining 68 byte values are displaced to
// consecutive code points starting at U+0100. Decoding reverses the
// permutation before UTF-8 reassembly, which is what lets byte sequences
// split across token pieces reassemble into whole characters.

var (
	byteToRune [256]rune
	runeToByte map[rune]byte
)

func init() {
	runeToByte = make(map[rune]byte, 256)

	isDirect := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}

	next := 0
	for b := 0; b < 256; b++ {
		var r rune
		if isDirect(b) {
			r = rune(b)
		} else {
			r = rune(256 + next)
			next++
		}
		byteToRune[b] = r
		runeToByte[r] = byte(b)
	}
}

// EncodeBytes maps each raw byte of s to its visible code point. This is
// the representation vocabulary pieces are stored in.
func EncodeBytes(s string) string {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, byteToRune[s[i]])
	}
	return string(out)
}

// DecodeBytes maps visible code points back to raw bytes and returns the
// reassembled string. Code points outside the table pass through unchanged,
// so pieces that were never byte-level encoded still decode readably.
func DecodeBytes(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := runeToByte[r]; ok {
			out = append(out, b)
		} else {
			out = append(out, []byte(string(r))...)
		}
	}
	return string(out)
}
