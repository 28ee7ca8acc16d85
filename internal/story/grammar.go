// Defines the story file grammar shared by the writer and the reader.
//
// A story file is a sequence of blocks, one per intent, separated by one blank
// line:
//
//	## greet
//	- hi
//	- hello
//
//	## bye
//
// A block starts with a header line (HeaderMarker followed by the escaped
// intent) and continues with utterance lines (UtteranceMarker followed by the
// escaped utterance). An empty utterance is written as a lone "-".
//
// Inside intents and utterances the marker characters, the escape character
// and line breaking characters are escaped with a backslash. Spaces ending the
// content are written as `\s` since trailing whitespace on a line carries no
// meaning. Files have no byte order mark; the final newline is optional.

package story

import (
	"strings"
)

const (
	// HeaderMarker starts a block header line.
	HeaderMarker = "## "
	// UtteranceMarker starts an utterance line.
	UtteranceMarker = "- "

	headerChar    = '#'
	utteranceChar = '-'
	escapeChar    = '\\'

	// trailingSpace lists the characters trimmed from the end of every line.
	trailingSpace = " \t\r"

	byteOrderMark = "\uFEFF"
)

// escapes maps the character following the escape character to its value.
var escapes = map[byte]byte{
	escapeChar:    escapeChar,
	headerChar:    headerChar,
	utteranceChar: utteranceChar,
	'n':           '\n',
	'r':           '\r',
	't':           '\t',
	's':           ' ',
}

// escape encodes s so it fits on a single line without reserved characters.
func escape(s string) string {
	// Spaces at or after trail are written as \s to survive trimming.
	trail := len(strings.TrimRight(s, " "))
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case escapeChar, headerChar, utteranceChar:
			sb.WriteByte(escapeChar)
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case ' ':
			if i >= trail {
				sb.WriteString(`\s`)
			} else {
				sb.WriteByte(c)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// unescape decodes content found on line at 1-based column col.
func unescape(s string, line, col int) (string, error) {
	if !strings.ContainsAny(s, `\#-`) {
		return s, nil
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case escapeChar:
			if i+1 >= len(s) {
				return "", malformed(line, col+i, "truncated escape sequence")
			}
			v, ok := escapes[s[i+1]]
			if !ok {
				return "", malformed(line, col+i, "invalid escape sequence %q", s[i:i+2])
			}
			sb.WriteByte(v)
			i++
		case headerChar, utteranceChar:
			return "", malformed(line, col+i, "unescaped %q in content", c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}
