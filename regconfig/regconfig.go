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

// Package regconfig reads linkregd's daemon configuration: an error-
// accumulating JSON object reader in the same style as the teacher's
// jsonconfig.Obj, specialized to the handful of keys a sync daemon
// actually needs (listen address, peer list, MySQL save DSN).
package regconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Obj is a JSON configuration object. Accessors accumulate errors
// instead of failing the first lookup, so one Parse call can report
// every problem in a config at once (grounded on jsonconfig.Obj).
type Obj map[string]interface{}

// Errors is the accumulated set of problems found while reading an Obj.
type Errors []error

func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	s := e[0].Error()
	for _, extra := range e[1:] {
		s += "; " + extra.Error()
	}
	return s
}

// ReadFile parses the JSON file at path into an Obj.
func ReadFile(path string) (Obj, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Obj
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("regconfig: %s: %w", path, err)
	}
	return o, nil
}

func (o Obj) str(key string, def *string, errs *[]error) string {
	v, ok := o[key]
	if !ok {
		if def != nil {
			return *def
		}
		*errs = append(*errs, fmt.Errorf("regconfig: missing required key %q (string)", key))
		return ""
	}
	s, ok := v.(string)
	if !ok {
		*errs = append(*errs, fmt.Errorf("regconfig: key %q should be a string, got %T", key, v))
		return ""
	}
	return s
}

// PeerConfig is one configured sync-peer mount.
type PeerConfig struct {
	Name       string `json:"name"`
	LocalPath  string `json:"localPath"`
	PeerPath   string `json:"peerPath"`
	RemoteAddr string `json:"remoteAddr"`

	// PipeCoalesceRegex, if set, is compiled and installed on the peer's
	// outbound Pipe-mode queues: a newly pushed message overwrites an
	// already-queued one whose bytes match it, instead of appending
	// beside it.
	PipeCoalesceRegex string `json:"pipeCoalesceRegex"`
}

// DaemonConfig is linkregd's full configuration.
type DaemonConfig struct {
	Listen             string
	Peers              []PeerConfig
	MySQLDSN           string
	ReconnectInterval  time.Duration
	MonitorListen      string // optional websocket live-monitor address, empty disables it
	LogSink            string // "", "stderr", or "logrus"
}

// Parse extracts a DaemonConfig from a raw Obj, accumulating every
// validation problem found rather than stopping at the first.
func Parse(o Obj) (DaemonConfig, error) {
	var errs []error
	cfg := DaemonConfig{
		Listen:            o.str("listen", strPtr(":2022"), &errs),
		MySQLDSN:          o.str("mysqlDSN", strPtr(""), &errs),
		MonitorListen:     o.str("monitorListen", strPtr(""), &errs),
		LogSink:           o.str("logSink", strPtr(""), &errs),
		ReconnectInterval: 2 * time.Second,
	}
	if raw, ok := o["reconnectIntervalSeconds"]; ok {
		if n, ok := raw.(float64); ok {
			cfg.ReconnectInterval = time.Duration(n * float64(time.Second))
		} else {
			errs = append(errs, fmt.Errorf("regconfig: key %q should be a number", "reconnectIntervalSeconds"))
		}
	}
	if raw, ok := o["peers"]; ok {
		list, ok := raw.([]interface{})
		if !ok {
			errs = append(errs, fmt.Errorf("regconfig: key %q should be an array", "peers"))
		} else {
			for i, item := range list {
				m, ok := item.(map[string]interface{})
				if !ok {
					errs = append(errs, fmt.Errorf("regconfig: peers[%d] should be an object", i))
					continue
				}
				po := Obj(m)
				var perrs []error
				pc := PeerConfig{
					Name:              po.str("name", strPtr(fmt.Sprintf("peer%d", i)), &perrs),
					LocalPath:         po.str("localPath", nil, &perrs),
					PeerPath:          po.str("peerPath", strPtr("/"), &perrs),
					RemoteAddr:        po.str("remoteAddr", nil, &perrs),
					PipeCoalesceRegex: po.str("pipeCoalesceRegex", strPtr(""), &perrs),
				}
				errs = append(errs, perrs...)
				cfg.Peers = append(cfg.Peers, pc)
			}
		}
	}
	if len(errs) > 0 {
		return cfg, Errors(errs)
	}
	return cfg, nil
}

func strPtr(s string) *string { return &s }
