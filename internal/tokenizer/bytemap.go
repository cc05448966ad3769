package tokenizer

// byteTables builds the reversible byte <-> rune mapping used by byte-level
// BPE vocabularies: printable latin-1 bytes map to themselves, the rest are
// shifted above U+0100.
func byteTables() (enc [256]rune, dec map[rune]byte) {
	dec = make(map[rune]byte, 256)
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + n)
			n++
		}
		enc[b] = r
		dec[r] = byte(b)
	}
	return enc, dec
}

var byteEncoder, byteDecoder = byteTables()

// ByteToken returns the vocabulary spelling of a raw byte in byte-level vocabularies.
func ByteToken(b byte) string { return string(byteEncoder[b]) }
