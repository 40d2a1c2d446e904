package model

import "time"

// Job represents one enhancement request tracked from submission to completion.
// It is the record kept in the job ledger.
type Job struct {
	ID            string     `json:"enhancementId" dynamodbav:"enhancementId"`
	SourceLocator string     `json:"imageUrl" dynamodbav:"imageUrl"`
	Status        JobStatus  `json:"status" dynamodbav:"status"`
	ContentType   string     `json:"contentType,omitempty" dynamodbav:"contentType,omitempty"`
	Filename      string     `json:"filename,omitempty" dynamodbav:"filename,omitempty"`
	ResultLocator *string    `json:"enhancedImageS3Key,omitempty" dynamodbav:"enhancedImageS3Key,omitempty"`
	Error         *string    `json:"errorDetail,omitempty" dynamodbav:"errorDetail,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" dynamodbav:"createdAt,unixtime"`
	StartedAt     *time.Time `json:"startedAt,omitempty" dynamodbav:"startedAt,omitempty,unixtime"`
	CompletedAt   *time.Time `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty,unixtime"`
}

// HasResult reports whether a result locator is recorded on the job.
func (j *Job) HasResult() bool {
	return j.ResultLocator != nil && *j.ResultLocator != ""
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (j *Job) Clone() *Job {
	c := *j
	if j.ResultLocator != nil {
		v := *j.ResultLocator
		c.ResultLocator = &v
	}
	if j.Error != nil {
		v := *j.Error
		c.Error = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// EnhancementMessage is the body published to the work queue.
// Workers decode it as JSON; the field names are part of the queue contract.
type EnhancementMessage struct {
	JobID         string `json:"enhancementId"`
	SourceLocator string `json:"imageUrl"`
}
