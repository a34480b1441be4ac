package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// maxMessageLength is Discord's per-message character limit
const maxMessageLength = 2000

var (
	// ErrClosed is returned by Receive after Close
	ErrClosed = errors.New("chat channel closed")
	// ErrSendOnly is returned by Receive on a session opened with SendOnly
	ErrSendOnly = errors.New("chat channel is send-only")
)

// Discord is a Channel backed by a bot gateway session
type Discord struct {
	session  *discordgo.Session
	channels map[string]bool
	sendOnly bool
	incoming chan Message
	closed   chan struct{}

	mu    sync.RWMutex
	botID string
}

type discordOptions struct {
	channelIDs []string
	sendOnly   bool
}

// DiscordOption customizes OpenDiscord
type DiscordOption func(*discordOptions)

// WithChannels delivers only messages from the given channels
func WithChannels(ids ...string) DiscordOption {
	return func(o *discordOptions) { o.channelIDs = append(o.channelIDs, ids...) }
}

// SendOnly opens the session for posting only: no message intents, no
// message handler, and Receive fails with ErrSendOnly.
func SendOnly() DiscordOption {
	return func(o *discordOptions) { o.sendOnly = true }
}

// OpenDiscord connects the bot
func OpenDiscord(token string, opts ...DiscordOption) (*Discord, error) {
	if token == "" {
		return nil, fmt.Errorf("failed to open discord session: empty token")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	var options discordOptions
	for _, opt := range opts {
		opt(&options)
	}
	d := newDiscord(session, options)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open discord gateway: %w", err)
	}
	if session.State != nil && session.State.User != nil {
		d.setBotID(session.State.User.ID)
	}

	slog.Info("discord connected", "bot_id", d.getBotID(), "send_only", d.sendOnly)
	return d, nil
}

// newDiscord sets intents and handlers on an unopened session
func newDiscord(session *discordgo.Session, options discordOptions) *Discord {
	d := &Discord{
		session:  session,
		channels: make(map[string]bool),
		sendOnly: options.sendOnly,
		incoming: make(chan Message, 64),
		closed:   make(chan struct{}),
	}
	for _, id := range options.channelIDs {
		if id != "" {
			d.channels[id] = true
		}
	}

	if d.sendOnly {
		session.Identify.Intents = discordgo.IntentsGuilds
		return d
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	session.AddHandler(d.onReady)
	session.AddHandler(d.onMessageCreate)
	return d
}

func (d *Discord) setBotID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.botID = id
}

func (d *Discord) getBotID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.botID
}

func (d *Discord) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		d.setBotID(r.User.ID)
	}
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := d.getBotID()
	if m.Author == nil || m.Author.Bot || m.Author.ID == botID {
		return
	}
	if len(d.channels) > 0 && !d.channels[m.ChannelID] {
		return
	}

	msg := Message{
		ChannelID:  m.ChannelID,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			msg.MentionedMe = true
			break
		}
	}
	msg.Text = StripMention(m.Content, botID)

	select {
	case d.incoming <- msg:
	case <-d.closed:
	default:
		slog.Warn("dropping chat message, receiver is behind", "channel_id", m.ChannelID, "sender", msg.SenderName)
	}
}

// Receive waits for the next message
func (d *Discord) Receive(ctx context.Context) (Message, error) {
	if d.sendOnly {
		return Message{}, ErrSendOnly
	}
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-d.closed:
		return Message{}, ErrClosed
	case msg := <-d.incoming:
		return msg, nil
	}
}

// Send posts text, truncated to Discord's length limit
func (d *Discord) Send(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return fmt.Errorf("failed to send message: empty channel id")
	}
	if _, err := d.session.ChannelMessageSend(channelID, Truncate(text, maxMessageLength), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close disconnects the gateway session
func (d *Discord) Close() error {
	select {
	case <-d.closed:
		return nil
	default:
		close(d.closed)
	}
	return d.session.Close()
}

// StripMention removes <@id> and <@!id> tokens for the bot, with the blanks
// that follow them, and trims the result. Line breaks are kept.
func StripMention(content, botID string) string {
	if botID != "" {
		mention := regexp.MustCompile(`<@!?` + regexp.QuoteMeta(botID) + `>[ \t]*`)
		content = mention.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

// Truncate cuts text to at most limit runes, marking the cut
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + "…"
}
