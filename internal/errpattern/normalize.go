// Package errpattern groups raw error messages into normalized patterns and
// counts how often each recurs.
package errpattern

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Placeholders substituted for variable parts of a message
const (
	PlaceholderUUID  = "<uuid>"
	PlaceholderEmail = "<email>"
	PlaceholderPath  = "<path>"
	PlaceholderNum   = "<n>"
)

// DefaultMaxKeyLength bounds a pattern key in runes
const DefaultMaxKeyLength = 200

var (
	uuidPattern  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	emailPattern = regexp.MustCompile(`[\w.+\-]+@[\w\-]+(?:\.[\w\-]+)+`)
	pathPattern  = regexp.MustCompile(`(^|[\s"'(=:])(?:/[\w.\-]+)+/?`)
	digitPattern = regexp.MustCompile(`\d+`)
)

// Normalize replaces UUIDs, emails, paths and digit runs with placeholders,
// in that order, and truncates the result to maxLen runes. A path must start
// the message or follow whitespace, a quote, a paren, '=' or ':', so URLs
// keep their scheme and host.
func Normalize(msg string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLength
	}

	key := strings.TrimSpace(msg)
	key = uuidPattern.ReplaceAllString(key, PlaceholderUUID)
	key = emailPattern.ReplaceAllString(key, PlaceholderEmail)
	key = pathPattern.ReplaceAllString(key, "${1}"+PlaceholderPath)
	key = digitPattern.ReplaceAllString(key, PlaceholderNum)

	if utf8.RuneCountInString(key) > maxLen {
		key = string([]rune(key)[:maxLen])
	}
	return key
}
