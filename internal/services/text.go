package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// idemKeyRE is the accepted idempotency key alphabet.
var idemKeyRE = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// emailRE is a deliberately loose shape check; ownership is not verified.
var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const maxIdempotencyKeyLen = 128

// normalizeName NFC-normalizes, trims and collapses inner whitespace.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// normalizeText prepares message bodies: NFC, LF line endings, at most one
// blank line in a row, no surrounding whitespace.
func normalizeText(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func validIdempotencyKey(k string) bool {
	return len(k) <= maxIdempotencyKeyLen && idemKeyRE.MatchString(k)
}
