// Package placement decides which execution tier runs a task.
//
// A task is described by a TaskContext. The routing policy is an ordered list of
// gates evaluated in a single pass; the first gate whose predicate matches decides:
//
//  1. privacy       raw PHI with an SLA <= 500ms      -> workstation
//  2. sla           SLA <= 50ms and a tiny model      -> edge
//  3. vram          model VRAM > workstation VRAM     -> cloud
//  4. connectivity  uplink < 20Mbps or jitter > 30ms  -> workstation
//  5. cost          spent >= daily budget             -> workstation
//  6. default       SLA <= 500ms -> workstation, else cloud
//
// Decide and Explain are both derived from Evaluate, so an explanation always names
// the target Decide returned. Everything in this package is pure and safe for
// concurrent use; there is no state to lock.
package placement
