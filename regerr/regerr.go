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

// Package regerr defines the registry's non-fatal error taxonomy and the
// process-wide hook that every illegal-but-survivable call reports
// through, instead of panicking or returning a fatal error.
package regerr

import "sync"

// Kind enumerates the error classes a registry operation can report.
// Handle operations never fail fatally: illegal calls return
// the type's zero value and report one of these kinds to the Hook.
type Kind int

const (
	Ok Kind = iota
	Info
	Warning
	Undef
	CreateError
	NotFound
	NotOpen
	AlreadyExist
	AlreadyOpen
	Retired
	FolderNotOpen
	ItemNotOpen
	ItemNotSet
	ConnectionError
	RecUnknown
	RpcInvokeError
	RpcReceiveError
	LoginBad
	RecNotExpected
	OpNotAllowed
	NotMainThread
	OutOfSequence
)

var kindNames = map[Kind]string{
	Ok:              "Ok",
	Info:            "Info",
	Warning:         "Warning",
	Undef:           "Undef",
	CreateError:     "CreateError",
	NotFound:        "NotFound",
	NotOpen:         "NotOpen",
	AlreadyExist:    "AlreadyExist",
	AlreadyOpen:     "AlreadyOpen",
	Retired:         "Retired",
	FolderNotOpen:   "FolderNotOpen",
	ItemNotOpen:     "ItemNotOpen",
	ItemNotSet:      "ItemNotSet",
	ConnectionError: "ConnectionError",
	RecUnknown:      "RecUnknown",
	RpcInvokeError:  "RpcInvokeError",
	RpcReceiveError: "RpcReceiveError",
	LoginBad:        "LoginBad",
	RecNotExpected:  "RecNotExpected",
	OpNotAllowed:    "OpNotAllowed",
	NotMainThread:   "NotMainThread",
	OutOfSequence:   "OutOfSequence",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Hook receives every non-fatal error report: a human-readable text, the
// Kind that classifies it, and an opaque reference to whatever raised it
// (a link, a handle, a peer — callers type-assert as needed).
type Hook func(text string, kind Kind, ref any)

var (
	mu   sync.RWMutex
	hook Hook
)

// SetHook installs the process-wide error log hook. Passing nil disables
// reporting (reports are simply dropped).
func SetHook(h Hook) {
	mu.Lock()
	defer mu.Unlock()
	hook = h
}

// Report delivers a non-fatal error to the installed hook, if any. It is
// safe to call from any goroutine, including from within a link's
// critical section — it never blocks on registry state.
func Report(text string, kind Kind, ref any) {
	mu.RLock()
	h := hook
	mu.RUnlock()
	if h != nil {
		h(text, kind, ref)
	}
}
