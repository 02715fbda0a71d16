package commands

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var greetings = []string{
	"I'm Hokko Tarumae, Tomakomai's Tourism Ambassador!★",
	"Hmm, would ah look cuter if ah was lookin' up more?",
	"A paper-winged migrating bird from the port in the north ♪ Type `%shelp` to see what I can play!",
}

// GreetCommand answers a mention
func (b *Bot) GreetCommand(m *discordgo.MessageCreate) {
	greeting := greetings[rand.IntN(len(greetings))]
	if strings.Contains(greeting, "%s") {
		greeting = fmt.Sprintf(greeting, b.prefix)
	}
	b.send(m.ChannelID, greeting)
}

// UnknownCommand points the user at help
func (b *Bot) UnknownCommand(m *discordgo.MessageCreate) {
	b.send(m.ChannelID, fmt.Sprintf("Unknown command. Try `%shelp`.", b.prefix))
}
