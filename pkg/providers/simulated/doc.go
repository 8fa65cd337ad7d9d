// Package simulated provides an in-process partition controller.
//
// The controller is seeded from a YAML inventory of CPCs, adapters and
// partitions and implements engine.Directory and engine.Transport. Start and
// stop can be given a transition delay, during which the partition reports
// starting or stopping and rejects further calls with ErrLocked.
//
// With a BadgerStore the state survives between processes, so repeated
// command line runs observe the effect of earlier ones.
package simulated
