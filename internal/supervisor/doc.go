// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

/*
Package supervisor provides suture-based process supervision for ticktrackd.

The tree has two child layers under the root: a worker layer for the
background cache refresher and an API layer for the local HTTP surface.
Failure isolation runs between layers; a crashing refresher never interrupts
request serving.

Supervisor events are logged through sutureslog, bridged onto the global
zerolog logger by logging.NewSlogLogger.
*/
package supervisor
