package compaction

// SummarizationSystemPrompt instructs the model to produce a summary that
// can stand in for the compressed part of the conversation.
const SummarizationSystemPrompt = `You are a conversation summarizer. Your summary will replace the earlier part of a conversation, so it must preserve everything needed to continue it.

## Guidelines

- Focus on key points, decisions and context that later turns depend on
- Include specific details (names, numbers, file paths, error messages)
- Keep the chronological order of events
- Note any open questions or pending tasks
- Do not add information that wasn't in the original conversation
- Be concise; use bullet points for clarity`

// SummaryPrefix introduces the summary message placed in front of the
// preserved tail.
const SummaryPrefix = "Summary of the earlier conversation:\n"

// BuildSummarizationUserPrompt creates the user message for summarization.
func BuildSummarizationUserPrompt(conversationText string) string {
	return `Please provide a concise summary of the following conversation. Focus on key points, decisions and important context for future reference.

<conversation>
` + conversationText + `
</conversation>`
}
