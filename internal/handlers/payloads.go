// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package handlers

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/validation"
)

// DocumentIngestPayload asks the platform to extract, chunk and index an
// uploaded room document.
type DocumentIngestPayload struct {
	DocumentID string `json:"documentId" validate:"required,jobid"`
	RoomID     string `json:"roomId" validate:"required,jobid"`
	FileURL    string `json:"fileUrl" validate:"required,url"`
	FileName   string `json:"fileName,omitempty" validate:"omitempty,max=255"`
	MimeType   string `json:"mimeType,omitempty" validate:"omitempty,max=127"`
}

// PodcastGeneratePayload asks the platform to script and voice a podcast
// episode from a room's documents.
type PodcastGeneratePayload struct {
	RoomID      string   `json:"roomId" validate:"required,jobid"`
	DocumentIDs []string `json:"documentIds" validate:"required,min=1,max=20,dive,jobid"`
	Title       string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Voice       string   `json:"voice,omitempty" validate:"omitempty,oneof=alloy echo fable onyx nova shimmer"`
	Language    string   `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// decodePayload unmarshals raw into T and validates it. Failures are
// permanent: retrying a malformed payload cannot succeed.
func decodePayload[T any](raw json.RawMessage) error {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return jobs.Permanent(fmt.Errorf("decode payload: %w", err))
	}
	if verr := validation.ValidateStruct(&p); verr != nil {
		return jobs.Permanent(fmt.Errorf("invalid payload: %w", verr))
	}
	return nil
}

// ValidatorFor returns the payload check for t, or nil for unknown types.
// The HTTP layer uses it to reject bad payloads before they are queued.
func ValidatorFor(t jobs.Type) func(json.RawMessage) error {
	switch t {
	case jobs.TypeDocumentIngest:
		return decodePayload[DocumentIngestPayload]
	case jobs.TypePodcastGenerate:
		return decodePayload[PodcastGeneratePayload]
	}
	return nil
}
