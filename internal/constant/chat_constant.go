package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"

	// Terminal states recorded in the assistant message meta.
	FinishReasonStop      = "stop"
	FinishReasonError     = "error"
	FinishReasonCancelled = "cancelled"

	// Topic for the in-process event bus between the generation engine
	// and the consumer service.
	GenerationCompletedTopic = "GENERATION_COMPLETED"

	// SystemPrompt is the fixed instruction segment that opens every
	// assembled context.
	SystemPrompt = `You are CodeAssist, a concise programming assistant. Answer using the conversation history and any uploaded files provided as context. When a question concerns an uploaded file, cite the filename. If the context does not contain the answer, say so instead of guessing.`
)
