// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	config, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if config.Store.Compression != "zstd" {
		t.Fatalf("default compression = %q", config.Store.Compression)
	}
	if config.Cache.BudgetBytes != 256<<20 || config.Cache.CeilingBytes != 512<<10 {
		t.Fatalf("default cache = %+v", config.Cache)
	}
	interval, err := config.DrainInterval()
	if err != nil {
		t.Fatalf("DrainInterval: %v", err)
	}
	if interval != 30*time.Second {
		t.Fatalf("default drain interval = %v", interval)
	}
}

func TestParseOverrides(t *testing.T) {
	config, err := Parse([]byte(`
paths:
  data: /var/lib/strata
store:
  key_file: /etc/strata/master.key
  compression: lz4
cache:
  budget_bytes: 1048576
  ceiling_bytes: 65536
quota:
  max_bytes: 10737418240
maintenance:
  drain_interval: 5s
log:
  level: debug
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if config.Paths.Data != "/var/lib/strata" {
		t.Fatalf("data path = %q", config.Paths.Data)
	}
	if config.Store.Compression != "lz4" || config.Store.KeyFile == "" {
		t.Fatalf("store = %+v", config.Store)
	}
	if config.Quota.MaxBytes != 10737418240 {
		t.Fatalf("quota = %+v", config.Quota)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"bad compression", "store:\n  compression: lzma\n", "compression"},
		{"ceiling over budget", "cache:\n  budget_bytes: 10\n  ceiling_bytes: 100\n", "ceiling"},
		{"bad interval", "maintenance:\n  drain_interval: soon\n", "drain_interval"},
		{"bad level", "log:\n  level: loud\n", "log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
