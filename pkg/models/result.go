package models

import "time"

// ExecutionResult is what the dispatcher hands back for one RUNNING execution.
type ExecutionResult struct {
	ExecutionID   string          `json:"execution_id"`
	Status        ExecutionStatus `json:"status"`
	OutputPayload map[string]any  `json:"output_payload,omitempty"`
	Error         map[string]any  `json:"error,omitempty"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	DurationMs    int64           `json:"duration_ms"`
}

func Success(executionID string, output map[string]any, startedAt time.Time) ExecutionResult {
	finishedAt := time.Now().UTC()

	if output == nil {
		output = map[string]any{}
	}

	return ExecutionResult{
		ExecutionID:   executionID,
		Status:        ExecutionStatusOK,
		OutputPayload: output,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		DurationMs:    durationMs(startedAt, finishedAt),
	}
}

// Failure builds a RETRY result when nextRetryAt is set and a FAILED one otherwise.
func Failure(executionID string, errorDetails map[string]any, startedAt time.Time, nextRetryAt *time.Time) ExecutionResult {
	finishedAt := time.Now().UTC()

	status := ExecutionStatusFailed
	if nextRetryAt != nil {
		status = ExecutionStatusRetry
	}

	return ExecutionResult{
		ExecutionID: executionID,
		Status:      status,
		Error:       errorDetails,
		NextRetryAt: nextRetryAt,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		DurationMs:  durationMs(startedAt, finishedAt),
	}
}

func (r ExecutionResult) Successful() bool {
	return r.Status == ExecutionStatusOK
}

func durationMs(startedAt, finishedAt time.Time) int64 {
	if startedAt.IsZero() {
		return 0
	}

	return finishedAt.Sub(startedAt).Milliseconds()
}
