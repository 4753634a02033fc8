/*
Copyright 2026 The linkreg Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package wire implements the registry's line-oriented wire format: an
// ordered sequence of "key[=value]" pairs, binary-safe via a small escape
// table, terminated by a single LF. It is the on-the-wire counterpart of
// the in-process event fabric — every sync.Peer message is one Map.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"

	"github.com/linkreg/linkreg/pkg/strutil"
)

// ErrTruncatedEscape is returned by Decode when a line ends mid-escape.
var ErrTruncatedEscape = errors.New("wire: truncated escape sequence")

// ErrBadEscape is returned by Decode for an unrecognized escape sequence.
var ErrBadEscape = errors.New("wire: invalid escape sequence")

// Terminator is the byte that ends every wire message. The protocol
// headers available for this implementation did not pin down the framing
// byte explicitly; LF is adopted, matching the line-oriented
// protocols elsewhere in the pack.
const Terminator = '\n'

// Pair is one key/value entry in a Map. HasValue distinguishes a
// present-but-empty value ("key=") from a valueless flag ("key").
type Pair struct {
	Key      string
	Value    []byte
	HasValue bool
}

// Map is an ordered sequence of key/value pairs, preserving insertion
// order and duplicate keys exactly as received.
type Map struct {
	Pairs []Pair
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

// Add appends a key with a value, returning m for chaining.
func (m *Map) Add(key string, value []byte) *Map {
	m.Pairs = append(m.Pairs, Pair{Key: key, Value: value, HasValue: true})
	return m
}

// AddString is Add with the value given as a string.
func (m *Map) AddString(key, value string) *Map {
	return m.Add(key, []byte(value))
}

// AddFlag appends a key with no value, returning m for chaining.
func (m *Map) AddFlag(key string) *Map {
	m.Pairs = append(m.Pairs, Pair{Key: key, HasValue: false})
	return m
}

// Get returns the value of the first pair with the given key. ok is
// false if the key is absent; if the key is present but valueless, ok is
// true and value is nil.
func (m *Map) Get(key string) (value []byte, ok bool) {
	for _, p := range m.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// GetString is Get with the value converted to a string.
func (m *Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	return string(v), ok
}

// Has reports whether key is present at all (with or without a value).
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// ValuesJoined concatenates every pair's value with no separator, the
// binary-stream export used by the pipe/RPC framing primitive.
func (m *Map) ValuesJoined() []byte {
	var b bytes.Buffer
	for _, p := range m.Pairs {
		if p.HasValue {
			b.Write(p.Value)
		}
	}
	return b.Bytes()
}

// Escape renders raw bytes safe for use as a wire value: backslash,
// space, '=', and control bytes are escaped so the result never contains
// an unescaped space or newline.
func Escape(raw []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(raw))
	for _, c := range raw {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case ' ':
			b.WriteString(`\_`)
		case '=':
			b.WriteString(`\=`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\0`)
		default:
			if c < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.Bytes()
}

// Unescape is the inverse of Escape.
func Unescape(esc []byte) ([]byte, error) {
	var b bytes.Buffer
	b.Grow(len(esc))
	for i := 0; i < len(esc); i++ {
		c := esc[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(esc) {
			return nil, ErrTruncatedEscape
		}
		switch esc[i] {
		case '\\':
			b.WriteByte('\\')
		case '_':
			b.WriteByte(' ')
		case '=':
			b.WriteByte('=')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'x':
			if i+2 >= len(esc) {
				return nil, ErrTruncatedEscape
			}
			var n int
			if _, err := fmt.Sscanf(string(esc[i+1:i+3]), "%02x", &n); err != nil {
				return nil, ErrBadEscape
			}
			b.WriteByte(byte(n))
			i += 2
		default:
			return nil, ErrBadEscape
		}
	}
	return b.Bytes(), nil
}

// Encode renders m as a single line, without the terminator.
func Encode(m *Map) []byte {
	var b bytes.Buffer
	for i, p := range m.Pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.Key)
		if p.HasValue {
			b.WriteByte('=')
			b.Write(Escape(p.Value))
		}
	}
	return b.Bytes()
}

// EncodeLine renders m as a complete, terminated wire message.
func EncodeLine(m *Map) []byte {
	line := Encode(m)
	out := make([]byte, 0, len(line)+1)
	out = append(out, line...)
	out = append(out, Terminator)
	return out
}

// Decode parses a single line (without its terminator) into a Map.
func Decode(line []byte) (*Map, error) {
	m := New()
	tokens := bytes.Split(line, []byte(" "))
	for _, tok := range tokens {
		if len(tok) == 0 {
			continue
		}
		eq := bytes.IndexByte(tok, '=')
		if eq == -1 {
			m.AddFlag(string(tok))
			continue
		}
		key := strutil.StringFromBytes(tok[:eq])
		val, err := Unescape(tok[eq+1:])
		if err != nil {
			return nil, fmt.Errorf("wire: decoding key %q: %w", key, err)
		}
		m.Add(key, val)
	}
	return m, nil
}

// ReadMap reads one terminated message from r and decodes it. It
// tolerates a trailing CR before the LF, for peers that frame with CRLF.
func ReadMap(r *bufio.Reader) (*Map, error) {
	line, err := r.ReadBytes(Terminator)
	if err != nil {
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte{Terminator})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return Decode(line)
}

// WriteMap encodes m and writes it, terminated, to w.
func WriteMap(w *bufio.Writer, m *Map) error {
	if _, err := w.Write(EncodeLine(m)); err != nil {
		return err
	}
	return w.Flush()
}
