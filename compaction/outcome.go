package compaction

import (
	"time"

	"github.com/youssefsiam38/agentcore/types"
)

// Status is the result kind of a compression attempt.
type Status string

const (
	StatusNoop               Status = "noop"
	StatusCompressed         Status = "compressed"
	StatusFailedTimeout      Status = "failed_timeout"
	StatusFailedModelError   Status = "failed_model_error"
	StatusFailedRatioTooLow  Status = "failed_ratio_too_low"
	StatusFailedRatioTooHigh Status = "failed_ratio_too_high"
)

// IsFailure reports whether the status is one of the failure kinds.
func (s Status) IsFailure() bool {
	switch s {
	case StatusFailedTimeout, StatusFailedModelError, StatusFailedRatioTooLow, StatusFailedRatioTooHigh:
		return true
	default:
		return false
	}
}

// IsRejection reports whether the summary was produced but rejected by the
// ratio check.
func (s Status) IsRejection() bool {
	return s == StatusFailedRatioTooLow || s == StatusFailedRatioTooHigh
}

// Outcome describes a compression attempt.
type Outcome struct {
	Status Status

	// OriginalMessages and CompressedMessages are message counts.
	OriginalMessages   int
	CompressedMessages int

	// OriginalTokens and CompressedTokens are estimates.
	OriginalTokens   int
	CompressedTokens int

	// Ratio is CompressedTokens / OriginalTokens.
	Ratio float64

	// Summary is the text returned by the summarization call.
	Summary string

	// Messages is the replacement history. It is set when Status is
	// compressed and also on ratio rejections, for inspection. Callers
	// must only install it when Succeeded reports true.
	Messages []types.Message

	// Err is a *CompactionError for failure statuses.
	Err error

	Duration time.Duration
}

// Succeeded reports whether the history should be replaced with Messages.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == StatusCompressed
}
