// Package compaction keeps conversation history within a token budget.
//
// When the estimated size of a history passes TokenLimit × ThresholdRatio,
// the Compressor keeps the most recent PreserveRatio share of messages
// verbatim and replaces everything older with a single summary produced by
// the model. System messages in the older part are carried over unchanged
// unless SummarizeSystem is set.
//
// # Usage
//
//	compressor, err := compaction.New(manager, model, &compaction.Config{
//	    TokenLimit:     32000,
//	    ThresholdRatio: 0.8,
//	    PreserveRatio:  0.3,
//	})
//	if err != nil {
//	    return err
//	}
//
//	outcome := compressor.Compress(ctx, messages, false)
//	if outcome.Succeeded() {
//	    messages = outcome.Messages
//	}
//
// # Outcomes
//
// Compress never returns an error directly. The Outcome status is one of:
//
//   - noop: compression was not due, or there was nothing older than the tail.
//   - compressed: Messages holds the replacement history.
//   - failed_timeout: the summarization request timed out.
//   - failed_model_error: the model failed or returned an empty summary.
//   - failed_ratio_too_low / failed_ratio_too_high: a summary was produced
//     but the compressed/original token ratio fell outside [MinRatio, MaxRatio].
//     Messages and Summary are still set so callers can inspect them.
//
// # Token Estimation
//
// Token counts are estimated from the transcript length at roughly three
// characters per token, plus a fixed overhead per message.
package compaction
