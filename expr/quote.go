// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Quote produces SQL single-quoted strings;
// quotes, backslashes, and control characters
// are backslash-escaped, and everything else
// is written verbatim
func Quote(s string) string {
	var buf strings.Builder
	quote(&buf, s)
	return buf.String()
}

func quote(out *strings.Builder, s string) {
	out.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'', '\\':
			out.WriteByte('\\')
			out.WriteRune(r)
		case '\n':
			out.WriteString(`\n`)
		case '\t':
			out.WriteString(`\t`)
		case '\r':
			out.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(out, `\u%04x`, r)
			} else {
				out.WriteRune(r)
			}
		}
	}
	out.WriteByte('\'')
}

// Unescape converts special sequences \t, \n and also unicode
// chars \uhhhh into plain string.
func Unescape(buf []byte) (string, error) {
	var tmp []byte
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRune(buf[i:])
			if r == utf8.RuneError && size == 1 {
				return "", fmt.Errorf("expr.Unescape: invalid rune 0x%x", buf[i:i+size])
			}
			tmp = append(tmp, buf[i:i+size]...)
			i += size - 1
			continue
		} else if c != '\\' {
			tmp = append(tmp, c)
			continue
		}
		i++
		if i >= len(buf) {
			return "", fmt.Errorf("expr.Unescape: cannot unescape trailing \\")
		}
		c = buf[i]
		switch c {
		case '\\':
			tmp = append(tmp, '\\')
		case 't':
			tmp = append(tmp, '\t')
		case 'n':
			tmp = append(tmp, '\n')
		case 'r':
			tmp = append(tmp, '\r')
		case '\'':
			tmp = append(tmp, '\'')
		case 'u':
			r := rune(0)
			i++
			for j := i; j < i+4; j++ {
				if j >= len(buf) {
					return "", fmt.Errorf("expr.Unescape: invalid \\u escape sequence")
				}
				add := rune(buf[j])
				if add >= '0' && add <= '9' {
					add -= '0'
				} else if add >= 'A' && add <= 'F' {
					add -= 'A'
					add += 10
				} else if add >= 'a' && add <= 'f' {
					add -= 'a'
					add += 10
				} else {
					return "", fmt.Errorf("expr.Unescape: invalid hex digit %q", string(rune(buf[j])))
				}
				r = (r * 16) + add
			}
			i += 3
			if !utf8.ValidRune(r) {
				return "", fmt.Errorf("expr.Unescape: rune U%x is invalid", r)
			}
			tmp = utf8.AppendRune(tmp, r)
		default:
			return "", fmt.Errorf("expr.Unescape: unexpected backslash escape of %q (0x%[1]x)", c)
		}
	}
	return string(tmp), nil
}

var keywords = map[string]bool{
	"and":   true,
	"or":    true,
	"not":   true,
	"true":  true,
	"false": true,
}

// IsKeyword returns whether s is a reserved
// word of the predicate language.
func IsKeyword(s string) bool {
	return keywords[strings.ToLower(s)]
}

func bareIdent(s string) bool {
	if s == "" || IsKeyword(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isalpha(c) || c == '_' || (i > 0 && isdigit(c)) {
			continue
		}
		return false
	}
	return true
}

// QuoteID produces a textual identifier;
// the returned string will be double-quoted with escapes
// if it is not a plain word or if it is a keyword.
func QuoteID(s string) string {
	if bareIdent(s) {
		return s
	}
	return strconv.Quote(s)
}
