// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

/*
Package supervisor runs docqueue's long-lived services under suture v4.

	root ("docqueue")
	├── data-layer
	│   ├── health-monitor
	│   └── sweeper
	├── worker-layer
	│   ├── dispatcher
	│   ├── promoter
	│   └── reaper
	└── api-layer
	    ├── websocket-hub
	    └── http-server

Each layer restarts its own children with exponential backoff, so a crashing
HTTP server does not stop job execution and a failing sweep does not stall
claims. Supervisor events are logged through sutureslog into zerolog.
*/
package supervisor
