/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"strings"
	"unicode"
)

// splitSQLStatements breaks a migration script on top-level semicolons.
// Quoted strings, quoted identifiers, dollar-quoted bodies and comments are
// never split; comments are dropped from the output.
func splitSQLStatements(script string) []string {
	s := &sqlSplitter{src: script}

	for s.pos < len(s.src) {
		s.step()
	}

	s.flush()

	return s.out
}

type sqlSplitter struct {
	src   string
	pos   int
	buf   strings.Builder
	out   []string
	quote byte
	tag   string
}

func (s *sqlSplitter) step() {
	rest := s.src[s.pos:]
	ch := rest[0]

	switch {
	case s.tag != "":
		if strings.HasPrefix(rest, s.tag) {
			s.emit(s.tag)
			s.tag = ""

			return
		}

		s.emit(rest[:1])
	case s.quote != 0:
		if ch == s.quote {
			s.quote = 0
		}

		s.emit(rest[:1])
	case strings.HasPrefix(rest, "--"):
		end := strings.IndexByte(rest, '\n')
		if end < 0 {
			s.pos = len(s.src)

			return
		}

		s.pos += end
	case strings.HasPrefix(rest, "/*"):
		end := strings.Index(rest[2:], "*/")
		if end < 0 {
			s.pos = len(s.src)

			return
		}

		s.pos += end + 4
	case ch == '\'' || ch == '"':
		s.quote = ch
		s.emit(rest[:1])
	case ch == '$':
		if tag := dollarTag(rest); tag != "" {
			s.tag = tag
			s.emit(tag)

			return
		}

		s.emit(rest[:1])
	case ch == ';':
		s.flush()
		s.pos++
	default:
		s.emit(rest[:1])
	}
}

func (s *sqlSplitter) emit(text string) {
	s.buf.WriteString(text)
	s.pos += len(text)
}

func (s *sqlSplitter) flush() {
	if stmt := strings.TrimSpace(s.buf.String()); stmt != "" {
		s.out = append(s.out, stmt)
	}

	s.buf.Reset()
}

// dollarTag returns the $tag$ opening text at the start of src, if any.
func dollarTag(src string) string {
	for i := 1; i < len(src); i++ {
		ch := rune(src[i])

		if ch == '$' {
			return src[:i+1]
		}

		if ch != '_' && !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			return ""
		}
	}

	return ""
}
