// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package validation wraps go-playground/validator v10 with a shared
// instance, the custom tags docqueue needs, and error messages that use the
// JSON field names clients send.
//
// Custom tags:
//   - jobid: 1-128 characters of letters, digits, '.', '_', ':' or '-'
//   - jobtype: one of the built-in job types
//
// Typical use in an HTTP handler:
//
//	var req EnqueueRequest
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
//	    return
//	}
package validation
