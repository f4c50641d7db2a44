package models

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

// ChatMessage is one conversational turn. Messages are appended in order
// and never edited or removed within a run.
type ChatMessage struct {
	ID        string `json:"id" yaml:"id"`
	Sender    Sender `json:"sender" yaml:"sender"`
	Name      string `json:"name" yaml:"name"`
	Text      string `json:"text" yaml:"text"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}
