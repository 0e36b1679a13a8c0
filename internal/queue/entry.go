package queue

import (
    "errors"
    "strconv"
    "time"
)

// Stream entries carry the encoded job under "data". job_id and attempt are
// duplicated as plain fields so XRANGE output is readable without decoding.
const (
    fieldData    = "data"
    fieldJobID   = "job_id"
    fieldAttempt = "attempt"
    fieldClass   = "class"
    fieldReason  = "reason"
    fieldFailed  = "failed_at"
)

// ClassUndecodable marks dead letters whose payload was not a job.
const ClassUndecodable = "undecodable"

var errNoPayload = errors.New("stream entry has no data field")

func entryValues(job Job) (map[string]any, error) {
    data, err := job.Encode()
    if err != nil { return nil, err }
    return map[string]any{
        fieldData:    string(data),
        fieldJobID:   job.JobID,
        fieldAttempt: strconv.Itoa(job.Attempt),
    }, nil
}

func payloadOf(values map[string]any) ([]byte, error) {
    switch v := values[fieldData].(type) {
    case string:
        return []byte(v), nil
    case []byte:
        return v, nil
    }
    return nil, errNoPayload
}

// jobFromValues decodes a stream entry back into a job.
func jobFromValues(values map[string]any) (Job, []byte, error) {
    raw, err := payloadOf(values)
    if err != nil { return Job{}, nil, err }
    job, err := DecodeJob(raw)
    return job, raw, err
}

func deadLetterValues(job Job, class string, cause error, now time.Time) map[string]any {
    vals, err := entryValues(job)
    if err != nil { vals = map[string]any{fieldJobID: job.JobID} }
    vals[fieldClass] = class
    vals[fieldFailed] = now.UTC().Format(time.RFC3339)
    if cause != nil { vals[fieldReason] = cause.Error() }
    return vals
}

func rawDeadLetterValues(raw []byte, cause error, now time.Time) map[string]any {
    vals := map[string]any{
        fieldData:   string(raw),
        fieldClass:  ClassUndecodable,
        fieldFailed: now.UTC().Format(time.RFC3339),
    }
    if cause != nil { vals[fieldReason] = cause.Error() }
    return vals
}
