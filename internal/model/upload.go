package model

import (
	"io"
	"time"
)

// SubmitRequest carries an uploaded image into the enhancement pipeline
type SubmitRequest struct {
	Body        io.Reader `json:"-"`
	Size        int64     `json:"size" validate:"gt=0"`
	ContentType string    `json:"contentType" validate:"required"`
	Filename    string    `json:"filename" validate:"max=255"`
}

// SubmitResponse represents the response for POST /upload/
type SubmitResponse struct {
	JobID     string    `json:"enhancementId"`
	Message   string    `json:"message"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ResultView represents the response for GET /result/:enhancementId.
// ImageURL is only set when Ready is true.
type ResultView struct {
	JobID    string    `json:"enhancementId"`
	Ready    bool      `json:"ready"`
	Status   JobStatus `json:"status"`
	Message  string    `json:"message"`
	ImageURL string    `json:"image_url,omitempty"`
}

// RedriveResponse represents the response for POST /redrive/:enhancementId
type RedriveResponse struct {
	JobID   string    `json:"enhancementId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}
