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

package value

import "testing"

func TestIntRoundTrip(t *testing.T) {
	c := New()
	c.SetInt(42)
	if v, ok := c.ToInt(); !ok || v != 42 {
		t.Fatalf("ToInt = %d, %v", v, ok)
	}
	if s, ok := c.ToText(); !ok || s != "42" {
		t.Fatalf("ToText = %q, %v", s, ok)
	}
	if f, ok := c.ToReal(); !ok || f != 42 {
		t.Fatalf("ToReal = %v, %v", f, ok)
	}
}

func TestTextToIntFailure(t *testing.T) {
	c := New()
	c.SetText("not a number")
	v, ok := c.ToInt()
	if ok || v != 0 {
		t.Fatalf("ToInt of non-numeric text = %d, %v, want 0, false", v, ok)
	}
}

func TestNullConversionsFail(t *testing.T) {
	c := New()
	c.SetNull()
	if _, ok := c.ToInt(); ok {
		t.Error("null should not convert to int")
	}
	if _, ok := c.ToText(); ok {
		t.Error("null should not convert to text")
	}
	if _, ok := c.ToBytes(); ok {
		t.Error("null should not convert to bytes")
	}
}

func TestWriteInvalidatesCache(t *testing.T) {
	c := New()
	c.SetInt(1)
	if v, _ := c.ToText(); v != "1" {
		t.Fatalf("expected cached text 1, got %q", v)
	}
	c.SetInt(2)
	if v, _ := c.ToText(); v != "2" {
		t.Fatalf("cache not invalidated after write: got %q, want 2", v)
	}
}

func TestSeqIncrementsOnWrite(t *testing.T) {
	c := New()
	if c.Seq() != 0 {
		t.Fatalf("fresh cell Seq() = %d, want 0", c.Seq())
	}
	c.SetInt(1)
	c.SetInt(1)
	c.SetText("x")
	if c.Seq() != 3 {
		t.Fatalf("Seq() = %d, want 3 (SetX always bumps; suppression is handled above this layer)", c.Seq())
	}
}

func TestSameAs(t *testing.T) {
	c := New()
	c.SetText("hello")
	if !c.SameAs(Text, []byte("hello")) {
		t.Error("SameAs should match identical type+bytes")
	}
	if c.SameAs(Text, []byte("world")) {
		t.Error("SameAs should not match different bytes")
	}
	if c.SameAs(Int, []byte("hello")) {
		t.Error("SameAs should not match a different type")
	}
}

func TestVariantBytesRoundTrip(t *testing.T) {
	c := New()
	v, ok := c.ToVariant()
	if ok || v != nil {
		t.Fatalf("fresh null cell ToVariant = %v, %v", v, ok)
	}
	c.SetBytes([]byte("k=1 j=2"))
	m, ok := c.ToVariant()
	if !ok {
		t.Fatal("expected bytes to parse as a variant map")
	}
	if val, _ := m.GetString("k"); val != "1" {
		t.Fatalf("variant field k = %q, want 1", val)
	}
}
