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

package regconfig

import (
	"encoding/json"
	"testing"
)

func parseRaw(t *testing.T, raw string) (DaemonConfig, error) {
	t.Helper()
	var o Obj
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatal(err)
	}
	return Parse(o)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parseRaw(t, `{}`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":2022" {
		t.Fatalf("Listen = %q, want default :2022", cfg.Listen)
	}
}

func TestParsePeers(t *testing.T) {
	cfg, err := parseRaw(t, `{
		"listen": ":2022",
		"peers": [
			{"name": "a", "localPath": "/mnt/a/", "peerPath": "/", "remoteAddr": "a.example:2022"}
		]
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].RemoteAddr != "a.example:2022" {
		t.Fatalf("unexpected peers: %+v", cfg.Peers)
	}
}

func TestParseAccumulatesErrors(t *testing.T) {
	_, err := parseRaw(t, `{"peers": [{"localPath": "/mnt/a/"}]}`)
	if err == nil {
		t.Fatal("expected a missing remoteAddr to be reported")
	}
}
