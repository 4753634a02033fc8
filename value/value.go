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

// Package value implements the registry's typed value cell: a tagged
// union over {null, int, real, bytes, text, variant} with lazy,
// invalidate-on-write cross-type conversion caching.
package value

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/linkreg/linkreg/wire"
)

// Export/Import errors.
var (
	ErrTruncatedExport = errors.New("value: truncated exported blob")
	ErrUnknownTag      = errors.New("value: unknown export tag")
	ErrIntOverflow     = errors.New("value: exported int overflows 32 bits")
)

// Type identifies which representation a Cell natively holds.
type Type int

const (
	Null Type = iota
	Int
	Real
	Bytes
	Text
	Variant
)

func (t Type) String() string {
	switch t {
	case Null:
		return "Null"
	case Int:
		return "Int"
	case Real:
		return "Real"
	case Bytes:
		return "Bytes"
	case Text:
		return "Text"
	case Variant:
		return "Variant"
	default:
		return "Unknown"
	}
}

type cacheEntry struct {
	computed bool
	ok       bool
}

// Cell is a tagged-union value with memoized cross-type conversions. The
// zero Cell is a valid null value. Cell is safe for concurrent use.
type Cell struct {
	mu  sync.Mutex
	typ Type

	vInt     int64
	vReal    float64
	vBytes   []byte
	vText    string
	vVariant *wire.Map

	cInt, cReal, cBytes, cText, cVariant cacheEntry

	seq uint64
}

// New returns a Cell holding a null value.
func New() *Cell {
	return &Cell{}
}

func (c *Cell) resetCacheLocked() {
	c.cInt = cacheEntry{}
	c.cReal = cacheEntry{}
	c.cBytes = cacheEntry{}
	c.cText = cacheEntry{}
	c.cVariant = cacheEntry{}
}

// Type returns the cell's current native type.
func (c *Cell) Type() Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typ
}

// Seq returns the monotonically increasing counter bumped on every
// successful write (SetX call), starting at 0 for a never-written cell.
func (c *Cell) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// SetNull sets the cell to the null value.
func (c *Cell) SetNull() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typ = Null
	c.resetCacheLocked()
	c.cInt = cacheEntry{computed: true, ok: false}
	c.seq++
}

// SetInt sets the cell to an integer value.
func (c *Cell) SetInt(v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typ = Int
	c.vInt = v
	c.resetCacheLocked()
	c.cInt = cacheEntry{computed: true, ok: true}
	c.seq++
}

// SetReal sets the cell to a floating-point value.
func (c *Cell) SetReal(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typ = Real
	c.vReal = v
	c.resetCacheLocked()
	c.cReal = cacheEntry{computed: true, ok: true}
	c.seq++
}

// SetBytes sets the cell to an opaque byte-string value. The slice is
// retained, not copied; callers must not mutate it afterwards.
func (c *Cell) SetBytes(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typ = Bytes
	c.vBytes = v
	c.resetCacheLocked()
	c.cBytes = cacheEntry{computed: true, ok: true}
	c.seq++
}

// SetText sets the cell to a UTF-8 text value.
func (c *Cell) SetText(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typ = Text
	c.vText = v
	c.resetCacheLocked()
	c.cText = cacheEntry{computed: true, ok: true}
	c.seq++
}

// SetVariant sets the cell to a structured wire.Map value. The map is
// retained, not copied; callers must not mutate it afterwards.
func (c *Cell) SetVariant(v *wire.Map) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typ = Variant
	c.vVariant = v
	c.resetCacheLocked()
	c.cVariant = cacheEntry{computed: true, ok: true}
	c.seq++
}

// ToInt converts the cell's current value to int64. ok is false if the
// cell is null or the conversion failed, in which case the returned
// value is the zero value.
func (c *Cell) ToInt() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cInt.computed {
		c.vInt, c.cInt.ok = c.computeIntLocked()
		c.cInt.computed = true
	}
	if !c.cInt.ok {
		return 0, false
	}
	return c.vInt, true
}

// ToReal converts the cell's current value to float64.
func (c *Cell) ToReal() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cReal.computed {
		c.vReal, c.cReal.ok = c.computeRealLocked()
		c.cReal.computed = true
	}
	if !c.cReal.ok {
		return 0, false
	}
	return c.vReal, true
}

// ToBytes converts the cell's current value to a byte string. The
// returned slice must not be mutated by the caller.
func (c *Cell) ToBytes() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cBytes.computed {
		c.vBytes, c.cBytes.ok = c.computeBytesLocked()
		c.cBytes.computed = true
	}
	if !c.cBytes.ok {
		return nil, false
	}
	return c.vBytes, true
}

// ToText converts the cell's current value to a UTF-8 string.
func (c *Cell) ToText() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cText.computed {
		c.vText, c.cText.ok = c.computeTextLocked()
		c.cText.computed = true
	}
	if !c.cText.ok {
		return "", false
	}
	return c.vText, true
}

// ToVariant converts the cell's current value to a structured wire.Map.
func (c *Cell) ToVariant() (*wire.Map, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cVariant.computed {
		c.vVariant, c.cVariant.ok = c.computeVariantLocked()
		c.cVariant.computed = true
	}
	if !c.cVariant.ok {
		return nil, false
	}
	return c.vVariant, true
}

// SameAs reports whether setting typ/raw on this cell would be a no-op
// write: same type, same canonical byte representation as the cell
// currently holds. It is the predicate behind equal-value suppression;
// callers must check it before calling SetX, since SetX invalidates
// the very cache this reads.
func (c *Cell) SameAs(typ Type, raw []byte) bool {
	c.mu.Lock()
	curType := c.typ
	c.mu.Unlock()
	if curType != typ {
		return false
	}
	cur, ok := c.ToBytes()
	if !ok {
		return len(raw) == 0
	}
	return string(cur) == string(raw)
}

// Export renders the cell's current value as a tagged binary blob: one
// type-tag byte ({0=null,1=int,2=real,3=bytes,4=text,5=variant},
// matching Type's own iota values) followed by the type's payload — int
// as signed 32-bit little-endian, real as IEEE-754 binary64 little-
// endian, bytes and text raw, variant via wire.Encode.
func (c *Cell) Export() ([]byte, error) {
	switch c.Type() {
	case Null:
		return []byte{byte(Null)}, nil
	case Int:
		v, _ := c.ToInt()
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, ErrIntOverflow
		}
		buf := make([]byte, 5)
		buf[0] = byte(Int)
		binary.LittleEndian.PutUint32(buf[1:], uint32(int32(v)))
		return buf, nil
	case Real:
		v, _ := c.ToReal()
		buf := make([]byte, 9)
		buf[0] = byte(Real)
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v))
		return buf, nil
	case Bytes:
		v, _ := c.ToBytes()
		out := make([]byte, 1, 1+len(v))
		out[0] = byte(Bytes)
		return append(out, v...), nil
	case Text:
		v, _ := c.ToText()
		out := make([]byte, 1, 1+len(v))
		out[0] = byte(Text)
		return append(out, v...), nil
	case Variant:
		v, _ := c.ToVariant()
		enc := wire.Encode(v)
		out := make([]byte, 1, 1+len(enc))
		out[0] = byte(Variant)
		return append(out, enc...), nil
	default:
		return nil, ErrUnknownTag
	}
}

// Import parses a blob produced by Export and sets the cell to the
// value it describes.
func (c *Cell) Import(data []byte) error {
	if len(data) == 0 {
		return ErrTruncatedExport
	}
	tag := Type(data[0])
	payload := data[1:]
	switch tag {
	case Null:
		c.SetNull()
	case Int:
		if len(payload) < 4 {
			return ErrTruncatedExport
		}
		c.SetInt(int64(int32(binary.LittleEndian.Uint32(payload[:4]))))
	case Real:
		if len(payload) < 8 {
			return ErrTruncatedExport
		}
		c.SetReal(math.Float64frombits(binary.LittleEndian.Uint64(payload[:8])))
	case Bytes:
		b := make([]byte, len(payload))
		copy(b, payload)
		c.SetBytes(b)
	case Text:
		c.SetText(string(payload))
	case Variant:
		m, err := wire.Decode(payload)
		if err != nil {
			return err
		}
		c.SetVariant(m)
	default:
		return ErrUnknownTag
	}
	return nil
}

func trimmed(s string) string { return strings.TrimSpace(s) }

func (c *Cell) computeIntLocked() (int64, bool) {
	switch c.typ {
	case Null:
		return 0, false
	case Int:
		return c.vInt, true
	case Real:
		if math.IsNaN(c.vReal) || math.IsInf(c.vReal, 0) {
			return 0, false
		}
		return int64(c.vReal), true
	case Bytes:
		n, err := strconv.ParseInt(trimmed(string(c.vBytes)), 10, 64)
		return n, err == nil
	case Text:
		n, err := strconv.ParseInt(trimmed(c.vText), 10, 64)
		return n, err == nil
	case Variant:
		return 0, false
	}
	return 0, false
}

func (c *Cell) computeRealLocked() (float64, bool) {
	switch c.typ {
	case Null:
		return 0, false
	case Int:
		return float64(c.vInt), true
	case Real:
		return c.vReal, true
	case Bytes:
		f, err := strconv.ParseFloat(trimmed(string(c.vBytes)), 64)
		return f, err == nil
	case Text:
		f, err := strconv.ParseFloat(trimmed(c.vText), 64)
		return f, err == nil
	case Variant:
		return 0, false
	}
	return 0, false
}

func (c *Cell) computeTextLocked() (string, bool) {
	switch c.typ {
	case Null:
		return "", false
	case Int:
		return strconv.FormatInt(c.vInt, 10), true
	case Real:
		return strconv.FormatFloat(c.vReal, 'g', -1, 64), true
	case Bytes:
		return string(c.vBytes), true
	case Text:
		return c.vText, true
	case Variant:
		return string(wire.Encode(c.vVariant)), true
	}
	return "", false
}

func (c *Cell) computeBytesLocked() ([]byte, bool) {
	switch c.typ {
	case Null:
		return nil, false
	case Int:
		return []byte(strconv.FormatInt(c.vInt, 10)), true
	case Real:
		return []byte(strconv.FormatFloat(c.vReal, 'g', -1, 64)), true
	case Bytes:
		return c.vBytes, true
	case Text:
		return []byte(c.vText), true
	case Variant:
		return wire.Encode(c.vVariant), true
	}
	return nil, false
}

func (c *Cell) computeVariantLocked() (*wire.Map, bool) {
	switch c.typ {
	case Bytes:
		m, err := wire.Decode(c.vBytes)
		return m, err == nil
	case Text:
		m, err := wire.Decode([]byte(c.vText))
		return m, err == nil
	case Variant:
		return c.vVariant, true
	default:
		return nil, false
	}
}
