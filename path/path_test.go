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

package path

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "", wantErr: true},
		{in: "/", want: "/"},
		{in: "//x", want: "/@/x"},
		{in: "/@/x", want: "/@/x"},
		{in: "/m/v", want: "/m/v"},
		{in: "/m/v/", want: "/m/v/"},
		{in: "/m/v!", want: "/m/v!"},
		{in: "/!", wantErr: true},
		{in: "m/v", want: "m/v"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Normalize(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, p := range []string{"/", "//x", "/m/v", "/m/v/", "/m/v!", "m/v", "/@/@/x"} {
		once, err := Normalize(p)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", p, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: Normalize(%q)=%q, Normalize(that)=%q", p, once, twice)
		}
	}
}

func TestIsFolderIsProvider(t *testing.T) {
	if !IsFolder("/m/v/") {
		t.Error("/m/v/ should be a folder")
	}
	if IsFolder("/m/v") {
		t.Error("/m/v should not be a folder")
	}
	if !IsProvider("/m/v!") {
		t.Error("/m/v! should be a provider")
	}
	if IsProvider("/m/v") {
		t.Error("/m/v should not be a provider")
	}
	if IsProvider("/m/v/") {
		t.Error("a folder is never a provider")
	}
}

func TestTwin(t *testing.T) {
	req := "/x/a"
	prov, err := Twin(req)
	if err != nil {
		t.Fatal(err)
	}
	if prov != "/x/a!" {
		t.Fatalf("Twin(%q) = %q, want /x/a!", req, prov)
	}
	back, err := Twin(prov)
	if err != nil {
		t.Fatal(err)
	}
	if back != req {
		t.Fatalf("Twin(Twin(p)) = %q, want %q", back, req)
	}
	if _, err := Twin("/x/a/"); err == nil {
		t.Error("folder should have no twin")
	}
}

func TestParentLeaf(t *testing.T) {
	p, err := Parent("/m/v")
	if err != nil || p != "/m/" {
		t.Fatalf("Parent(/m/v) = %q, %v", p, err)
	}
	leaf, err := Leaf("/m/v")
	if err != nil || leaf != "v" {
		t.Fatalf("Leaf(/m/v) = %q, %v", leaf, err)
	}
	leaf, err = Leaf("/m/v!")
	if err != nil || leaf != "v" {
		t.Fatalf("Leaf(/m/v!) = %q, %v", leaf, err)
	}
	if _, err := Parent("/"); err == nil {
		t.Error("root should have no parent")
	}
}

func TestParentConcatInvariant(t *testing.T) {
	for _, p := range []string{"/m/v", "/a/b/c", "/a/b/c!"} {
		parent, err := Parent(p)
		if err != nil {
			t.Fatal(err)
		}
		leaf, err := Leaf(p)
		if err != nil {
			t.Fatal(err)
		}
		suffix := leaf
		if IsProvider(p) {
			suffix += "!"
		}
		rebuilt, err := Normalize(parent + suffix)
		if err != nil {
			t.Fatal(err)
		}
		want, err := Normalize(p)
		if err != nil {
			t.Fatal(err)
		}
		if rebuilt != want {
			t.Errorf("normalize(parent++name) = %q, want %q", rebuilt, want)
		}
	}
}

func TestChildOf(t *testing.T) {
	child, ok := ChildOf("/a/", "/a/b/c")
	if !ok || child != "/a/b/" {
		t.Fatalf("ChildOf(/a/, /a/b/c) = %q, %v", child, ok)
	}
	if _, ok := ChildOf("/a/", "/x/y"); ok {
		t.Error("ChildOf should reject non-descendant")
	}
	if _, ok := ChildOf("/a/", "/a/"); ok {
		t.Error("ChildOf(p, p) should be false: posterity must be strictly below parent")
	}
}

func TestRebase(t *testing.T) {
	got, ok := Rebase("/local/mount/sub/v", "/local/mount", "/remote/area")
	if !ok || got != "/remote/area/sub/v" {
		t.Fatalf("Rebase = %q, %v", got, ok)
	}
	got, ok = Rebase("/local/mount", "/local/mount", "/remote/area")
	if !ok || got != "/remote/area" {
		t.Fatalf("Rebase exact mount point = %q, %v", got, ok)
	}
	if _, ok := Rebase("/other/sub", "/local/mount", "/remote/area"); ok {
		t.Error("Rebase should reject paths outside the mount")
	}
}

func TestAbsoluteRelative(t *testing.T) {
	abs, err := ToAbsolute("m/v")
	if err != nil || abs != "/m/v" {
		t.Fatalf("ToAbsolute = %q, %v", abs, err)
	}
	rel, err := ToRelative("/m/v")
	if err != nil || rel != "m/v" {
		t.Fatalf("ToRelative = %q, %v", rel, err)
	}
	if _, err := ToRelative("/"); err == nil {
		t.Error("root should have no relative form")
	}
}
