// Package config loads partition request files.
//
// A request file names one or more partitions with their desired state and
// properties, plus optional settings for the reconciler and the policy gate.
// YAML, JSON, TOML and CUE encodings are accepted:
//
//	cpc_name: CPC1
//	settings:
//	  poll_interval: 1s
//	  wait_timeout: 10m
//	  protected_prefixes: [prod-]
//	partitions:
//	  - name: web
//	    state: active
//	    properties:
//	      ifl_processors: 2
//	      initial_memory: 4096
//	      boot_network_nic_name: eth0
//
// Every document is checked against a built-in CUE schema, then decoded into
// RequestFile and validated with struct tags. CUE files are unified with the
// schema before they are exported, so they may use comprehensions, hidden
// fields and references.
//
// Partition properties are passed through untouched; they are checked
// against the partition property schema when reconciled.
package config
