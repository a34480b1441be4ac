// Package chat abstracts the channel users talk to the pipeline through.
package chat

import "context"

// Message is one incoming chat message
type Message struct {
	ChannelID   string
	SenderID    string
	SenderName  string
	Text        string
	MentionedMe bool
}

// Sender posts text to a channel
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Channel is a two-way chat connection. Receive blocks until a message
// arrives or ctx is done.
type Channel interface {
	Sender
	Receive(ctx context.Context) (Message, error)
}
