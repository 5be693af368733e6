// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

/*
Package websocket pushes job lifecycle events to browser clients.

The Hub subscribes once to the event bus and fans each event out to the
clients watching that job (or all jobs, for an empty filter). Each Client
runs a read pump that answers pings and a write pump that drains its send
buffer. Slow clients whose buffer fills are dropped rather than blocking
the hub.

Messages are JSON:

	{"type": "job_event", "data": {"kind": "progress", "job_id": "...", "progress": 50, ...}}
	{"type": "pong", "data": null}

Polling GET /api/v1/jobs/{id} remains the authoritative way to read status;
the socket is a latency optimisation.
*/
package websocket
