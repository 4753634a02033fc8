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

// Package path implements the hierarchical, filesystem-like addressing
// scheme used throughout the registry: '/'-separated segments, an
// optional trailing '/' folder mark, an optional trailing '!' provider
// mark on the last segment, and the '@' spelling of an empty segment.
package path

import (
	"errors"
	"strings"

	"github.com/linkreg/linkreg/pkg/strutil"
)

var (
	// ErrEmpty is returned for the empty string, which is never a valid path.
	ErrEmpty = errors.New("path: empty path")

	// ErrFolderProvider is returned for a path that is marked both as a
	// folder and as a provider twin (e.g. "/!"), which is illegal.
	ErrFolderProvider = errors.New("path: folder cannot carry a provider mark")

	// ErrNoTwin is returned by Twin and WithProvider when called on a
	// folder or root path, neither of which has a twin.
	ErrNoTwin = errors.New("path: folder paths have no twin")

	// ErrNoParent is returned by Parent when called on the root path.
	ErrNoParent = errors.New("path: root has no parent")

	// ErrNoRelative is returned by ToRelative when called on the root path.
	ErrNoRelative = errors.New("path: root has no relative form")
)

// split decomposes p into its segments (with empty names spelled "@"),
// its folder mark, and whether it is rooted at "/".
func split(p string) (segs []string, folder, absolute bool, err error) {
	if p == "" {
		return nil, false, false, ErrEmpty
	}
	s := p
	if strings.HasPrefix(s, "/") {
		absolute = true
		s = s[1:]
	}
	if s == "" {
		// Only p == "/" gets here: p == "" was caught above, and a
		// relative p keeps all of its (non-empty) text in s.
		return nil, true, absolute, nil
	}
	if absolute && s == "!" {
		// "/!" would be the root folder carrying a provider mark.
		return nil, false, false, ErrFolderProvider
	}
	if strings.HasSuffix(s, "/") {
		folder = true
		s = s[:len(s)-1]
	}
	if s == "" {
		return nil, folder, absolute, nil
	}
	raw := strutil.AppendSplitN(nil, s, "/", -1)
	segs = make([]string, 0, len(raw))
	for i, seg := range raw {
		if seg == "" {
			if i > 0 {
				// A redundant internal slash ("a//b") adds no segment.
				continue
			}
			// A leading "//" spells an empty first name.
			seg = "@"
		}
		segs = append(segs, seg)
	}
	if folder && strings.HasSuffix(segs[len(segs)-1], "!") {
		return nil, false, false, ErrFolderProvider
	}
	return segs, folder, absolute, nil
}

// join is the inverse of split: it renders segs back into canonical form.
func join(segs []string, folder, absolute bool) string {
	var b strings.Builder
	if absolute {
		b.WriteByte('/')
	}
	b.WriteString(strings.Join(segs, "/"))
	if folder && len(segs) > 0 {
		b.WriteByte('/')
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// Normalize reduces p to its canonical spelling: a leading "//" spelled
// as a literal "@" segment, redundant internal slashes removed, folder and
// provider marks preserved. Normalize(Normalize(p)) == Normalize(p) for
// every valid p.
func Normalize(p string) (string, error) {
	segs, folder, absolute, err := split(p)
	if err != nil {
		return "", err
	}
	return join(segs, folder, absolute), nil
}

// Segments normalizes p and returns its path segments (with provider
// marks left on the last one) and folder flag, for callers that walk the
// tree level by level.
func Segments(p string) (segs []string, folder bool, err error) {
	segs, folder, _, err = split(p)
	return segs, folder, err
}

// IsFolder reports whether p carries a trailing folder mark.
func IsFolder(p string) bool {
	_, folder, _, err := split(p)
	return err == nil && folder
}

// IsProvider reports whether p is the provider side of a bidirectional twin.
func IsProvider(p string) bool {
	segs, folder, _, err := split(p)
	if err != nil || folder || len(segs) == 0 {
		return false
	}
	return strings.HasSuffix(segs[len(segs)-1], "!")
}

// IsRoot reports whether p denotes the registry root.
func IsRoot(p string) bool {
	segs, _, _, err := split(p)
	return err == nil && len(segs) == 0
}

// Leaf returns the last segment's name, with any provider mark stripped.
// The root path has no leaf and returns "".
func Leaf(p string) (string, error) {
	segs, _, _, err := split(p)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", nil
	}
	return strings.TrimSuffix(segs[len(segs)-1], "!"), nil
}

// Parent returns the folder path of p's immediate parent.
func Parent(p string) (string, error) {
	segs, _, absolute, err := split(p)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", ErrNoParent
	}
	return join(segs[:len(segs)-1], true, absolute), nil
}

// Twin toggles the provider mark on p's last segment: the request side
// of a bidirectional pair maps to the provider side and vice versa.
// Folder and root paths have no twin.
func Twin(p string) (string, error) {
	segs, folder, absolute, err := split(p)
	if err != nil {
		return "", err
	}
	if folder || len(segs) == 0 {
		return "", ErrNoTwin
	}
	out := append([]string(nil), segs...)
	last := out[len(out)-1]
	if strings.HasSuffix(last, "!") {
		out[len(out)-1] = strings.TrimSuffix(last, "!")
	} else {
		out[len(out)-1] = last + "!"
	}
	return join(out, false, absolute), nil
}

// WithProvider forces p's provider polarity to match provider.
func WithProvider(p string, provider bool) (string, error) {
	segs, folder, absolute, err := split(p)
	if err != nil {
		return "", err
	}
	if folder || len(segs) == 0 {
		if provider {
			return "", ErrNoTwin
		}
		return join(segs, folder, absolute), nil
	}
	out := append([]string(nil), segs...)
	base := strings.TrimSuffix(out[len(out)-1], "!")
	if provider {
		base += "!"
	}
	out[len(out)-1] = base
	return join(out, folder, absolute), nil
}

// ChildOf returns the immediate child of parent that lies on the path to
// posterity, or ok=false if posterity is not a (possibly indirect)
// descendant of parent.
func ChildOf(parent, posterity string) (child string, ok bool) {
	pSegs, _, pAbs, err := split(parent)
	if err != nil {
		return "", false
	}
	cSegs, cFolder, cAbs, err := split(posterity)
	if err != nil {
		return "", false
	}
	if pAbs != cAbs || len(cSegs) <= len(pSegs) {
		return "", false
	}
	for i := range pSegs {
		if pSegs[i] != cSegs[i] {
			return "", false
		}
	}
	childSegs := cSegs[:len(pSegs)+1]
	folder := len(childSegs) < len(cSegs) || cFolder
	return join(childSegs, folder, cAbs), true
}

// IsDescendantOf reports whether candidate is parent or lies anywhere
// below it in the tree.
func IsDescendantOf(parent, candidate string) bool {
	pn, err := Normalize(parent)
	if err != nil {
		return false
	}
	cn, err := Normalize(candidate)
	if err != nil {
		return false
	}
	if pn == cn {
		return true
	}
	_, ok := ChildOf(parent, candidate)
	return ok
}

// ToAbsolute returns p rewritten as an absolute (root-anchored) path.
func ToAbsolute(p string) (string, error) {
	segs, folder, _, err := split(p)
	if err != nil {
		return "", err
	}
	return join(segs, folder, true), nil
}

// ToRelative returns p rewritten without a leading "/". The root path has
// no relative form.
func ToRelative(p string) (string, error) {
	segs, folder, _, err := split(p)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", ErrNoRelative
	}
	return join(segs, folder, false), nil
}

// WithFolderMark returns p with a trailing folder mark added. A provider
// path cannot be marked as a folder.
func WithFolderMark(p string) (string, error) {
	segs, _, absolute, err := split(p)
	if err != nil {
		return "", err
	}
	if len(segs) > 0 && strings.HasSuffix(segs[len(segs)-1], "!") {
		return "", ErrFolderProvider
	}
	return join(segs, true, absolute), nil
}

// WithoutFolderMark returns p with any trailing folder mark removed.
func WithoutFolderMark(p string) (string, error) {
	segs, _, absolute, err := split(p)
	if err != nil {
		return "", err
	}
	return join(segs, false, absolute), nil
}

// Rebase rewrites a path rooted under oldBase so that it is instead
// rooted under newBase, used by sync peers to translate between a local
// mount point and the corresponding path on a remote registry.
func Rebase(p, oldBase, newBase string) (string, bool) {
	child, ok := childSuffix(p, oldBase)
	if !ok {
		return "", false
	}
	nb, err := Normalize(newBase)
	if err != nil {
		return "", false
	}
	if child == "" {
		folder := IsFolder(p)
		if folder {
			s, err := WithFolderMark(nb)
			if err != nil {
				return "", false
			}
			return s, true
		}
		return nb, true
	}
	nb = strings.TrimSuffix(nb, "/")
	if nb == "" {
		nb = "/"
	}
	if nb == "/" {
		return nb + child, true
	}
	return nb + "/" + child, true
}

// childSuffix returns the portion of p below base (without a leading
// slash), and ok=true if p is base or a descendant of base.
func childSuffix(p, base string) (string, bool) {
	pn, err := Normalize(p)
	if err != nil {
		return "", false
	}
	bn, err := Normalize(base)
	if err != nil {
		return "", false
	}
	if pn == bn {
		return "", true
	}
	bn = strings.TrimSuffix(bn, "/")
	prefix := bn + "/"
	if bn == "" {
		prefix = "/"
	}
	if !strings.HasPrefix(pn, prefix) {
		return "", false
	}
	return strings.TrimPrefix(pn, prefix), true
}
