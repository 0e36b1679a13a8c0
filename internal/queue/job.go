package queue

import (
    "encoding/json"
    "fmt"
)

// Job is the payload of one queued merge.
type Job struct {
    JobID          string    `json:"job_id"`
    Sources        []string  `json:"sources"`
    OutputName     string    `json:"output_name"`
    Formats        []string  `json:"formats"`
    Overrides      Overrides `json:"overrides"`
    IdempotencyKey string    `json:"idempotency_key,omitempty"`
    Attempt        int       `json:"attempt"`
    Source         string    `json:"source,omitempty"` // api, cli
}

// Overrides force the classification of pre-split page ids.
type Overrides struct {
    Spread []uint32 `json:"spread,omitempty"`
    Single []uint32 `json:"single,omitempty"`
}

// Next is the job as scheduled for its following attempt.
func (j Job) Next() Job {
    if j.Attempt <= 0 { j.Attempt = 1 }
    j.Attempt++
    return j
}

// Encode marshals the job for the stream.
func (j Job) Encode() ([]byte, error) { return json.Marshal(j) }

// DecodeJob parses a stream payload.
func DecodeJob(data []byte) (Job, error) {
    var j Job
    if err := json.Unmarshal(data, &j); err != nil {
        return Job{}, fmt.Errorf("decode job: %w", err)
    }
    if j.JobID == "" {
        return Job{}, fmt.Errorf("decode job: missing job_id")
    }
    if j.Attempt <= 0 { j.Attempt = 1 }
    return j, nil
}

// Delivery is a job read from the stream, acked by message id.
type Delivery struct {
    MsgID string
    Job   Job
}
