// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Strata.
//
// Configuration is loaded from a single YAML file named explicitly by
// the caller (the --config flag or the STRATA_CONFIG environment
// variable). There are no fallbacks and no automatic discovery:
// deterministic, auditable configuration with no hidden overrides.
//
// Every field except paths.data has a working default; a file that
// sets only paths.data configures an unencrypted development store.
package config
