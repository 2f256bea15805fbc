package llms

type ReplyOptions struct {
	// Instructions is the system prompt prepended to the history.
	Instructions string
	// Model overrides the provider's default model for this call.
	Model string

	Temperature *float64
	MaxTokens   int
}

type ReplyOption func(*ReplyOptions)

func WithInstructions(instructions string) ReplyOption {
	return func(o *ReplyOptions) {
		o.Instructions = instructions
	}
}

func WithModel(model string) ReplyOption {
	return func(o *ReplyOptions) {
		if model == "" {
			return
		}
		o.Model = model
	}
}

func WithTemperature(temperature float64) ReplyOption {
	return func(o *ReplyOptions) {
		o.Temperature = &temperature
	}
}

func WithMaxTokens(maxTokens int) ReplyOption {
	return func(o *ReplyOptions) {
		o.MaxTokens = maxTokens
	}
}
