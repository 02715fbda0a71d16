package handlers

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/internal/commands"
)

// MessageHandler routes prefixed text commands to the bot
type MessageHandler struct {
	bot    *commands.Bot
	prefix string
}

// NewMessageHandler creates a handler for commands starting with prefix
func NewMessageHandler(bot *commands.Bot, prefix string) *MessageHandler {
	if prefix == "" {
		prefix = "!"
	}
	return &MessageHandler{bot: bot, prefix: prefix}
}

// Handle is registered with the Discord session
func (h *MessageHandler) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State == nil || s.State.User == nil {
		return
	}
	h.dispatch(s.State.User.ID, m)
}

func (h *MessageHandler) dispatch(selfID string, m *discordgo.MessageCreate) {
	// Ignore all messages created by the bot itself or other bots
	if m.Author == nil || m.Author.ID == selfID || m.Author.Bot {
		return
	}
	// Voice commands only make sense in a guild
	if m.GuildID == "" {
		return
	}

	for _, mention := range m.Mentions {
		if mention.ID == selfID {
			h.bot.GreetCommand(m)
			return
		}
	}

	if !strings.HasPrefix(m.Content, h.prefix) {
		return
	}
	args := strings.Fields(strings.TrimPrefix(m.Content, h.prefix))
	if len(args) == 0 {
		return
	}
	command := strings.ToLower(args[0])
	args = args[1:]

	switch command {
	case "play", "p":
		h.bot.PlayCommand(m, args)
	case "pause":
		h.bot.PauseCommand(m)
	case "resume":
		h.bot.ResumeCommand(m)
	case "skip":
		h.bot.SkipCommand(m)
	case "stop", "leave":
		h.bot.StopCommand(m)
	case "nowplaying", "np":
		h.bot.NowPlayingCommand(m)
	case "history":
		h.bot.HistoryCommand(m, args)
	case "help", "h":
		h.bot.HelpCommand(m)
	case "utility":
		h.bot.UtilityCommand(m, args)
	default:
		h.bot.UnknownCommand(m)
	}
}
