package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, channelID+":"+content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestAnnouncerThrottles(t *testing.T) {
	sender := &fakeSender{}
	a := NewAnnouncer(sender, pipeline.AnnounceConfig{Interval: time.Hour, Burst: 2}, nil)

	require.NoError(t, a.Announce(context.Background(), "text", "one"))
	require.NoError(t, a.Announce(context.Background(), "text", "two"))
	err := a.Announce(context.Background(), "text", "three")
	assert.ErrorIs(t, err, ErrAnnounceThrottled)

	assert.Equal(t, []string{"text:one", "text:two"}, sender.sent)
}

func TestAnnouncerUnlimited(t *testing.T) {
	sender := &fakeSender{}
	a := NewAnnouncer(sender, pipeline.AnnounceConfig{}, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Announce(context.Background(), "text", "hi"))
	}
	assert.Len(t, sender.sent, 10)
}

func TestAnnouncerPropagatesSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("missing access")}
	a := NewAnnouncer(sender, pipeline.AnnounceConfig{Interval: time.Second, Burst: 1}, nil)

	err := a.Announce(context.Background(), "text", "hi")
	assert.EqualError(t, err, "missing access")
}
