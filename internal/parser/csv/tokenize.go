// Package csv parses the two country CSV layouts into typed rows.
//
// Tokenization is a two-state machine (in quotes / not in quotes) over the
// whole text, so quoted newlines survive; blank lines between records are
// discarded. Format writes records back with the same quoting rules and each
// record's own line terminator, which gives a byte-for-byte round trip for
// canonically quoted input.
package csv

import (
	"strings"
)

// Record is one tokenized CSV record and the 1-based line it started on.
// EOL is the terminator that ended it: "\n", "\r\n", or "" at end of input.
type Record struct {
	Line   int
	Fields []string
	EOL    string
}

// Tokenize splits text into records.
//
// A double quote toggles quoting; `""` inside a quoted field is a literal
// quote; commas and newlines inside quotes are data. CRLF line endings are
// accepted outside quotes. A record made of a single whitespace-only field
// with no quotes is a blank line and is dropped.
func Tokenize(text string) []Record {
	var (
		out      []Record
		fields   []string
		field    strings.Builder
		inQuotes bool
		quoted   bool
		line     = 1
		start    = 1
	)

	flush := func(eol string) {
		fields = append(fields, field.String())
		field.Reset()
		if !(len(fields) == 1 && !quoted && strings.TrimSpace(fields[0]) == "") {
			out = append(out, Record{Line: start, Fields: fields, EOL: eol})
		}
		fields = nil
		quoted = false
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inQuotes {
			switch c {
			case '"':
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
			case '\n':
				line++
				field.WriteByte(c)
			default:
				field.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inQuotes = true
			quoted = true
		case ',':
			fields = append(fields, field.String())
			field.Reset()
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				continue
			}
			field.WriteByte(c)
		case '\n':
			eol := "\n"
			if i > 0 && text[i-1] == '\r' {
				eol = "\r\n"
			}
			flush(eol)
			line++
			start = line
		default:
			field.WriteByte(c)
		}
	}
	if field.Len() > 0 || len(fields) > 0 || quoted {
		flush("")
	}
	return out
}
