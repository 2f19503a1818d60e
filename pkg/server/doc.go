// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package server exposes the Orchestrator over HTTP/SSE (SPEC_FULL.md
// §11.1): a go-chi/chi/v5 router wiring execute/stream/classify/listing
// operations to JSON and text/event-stream responses.
package server
