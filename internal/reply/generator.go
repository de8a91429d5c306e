package reply

import "context"

// Turn is one entry of the conversation history handed to the generator.
// Role is "model" for the bot's own messages and "user" for the human's.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Generator produces a reply from a conversation history. Calls may take
// arbitrarily long and may fail; callers own the fallback behavior.
type Generator interface {
	Generate(ctx context.Context, history []Turn) (string, error)
}
