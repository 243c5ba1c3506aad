package totp

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeCode folds full-width characters to their ASCII forms and drops
// spaces and dashes, so "１２３ ４５６" and "123-456" both become "123456".
func NormalizeCode(code string) string {
	code = width.Narrow.String(code)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, code)
}

// ValidCodeFormat reports whether code consists of exactly digits ASCII digits.
func ValidCodeFormat(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
