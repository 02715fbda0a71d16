package presence

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/player"
)

const (
	presenceDefault = "default"
	presenceMusic   = "music"
)

// StatusUpdater sets the bot's status. *discordgo.Session implements it.
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// PresenceManager shows the track being played as the bot's status. It
// observes every guild's player; the most recently started track wins.
type PresenceManager struct {
	player.NopObserver

	updater    StatusUpdater
	guildCount func() int
	logger     pipeline.Logger

	mu      sync.Mutex
	playing map[string]string
	current string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(session *discordgo.Session, logger pipeline.Logger) *PresenceManager {
	return newPresenceManager(session, func() int {
		session.State.RLock()
		defer session.State.RUnlock()
		return len(session.State.Guilds)
	}, logger)
}

func newPresenceManager(updater StatusUpdater, guildCount func() int, logger pipeline.Logger) *PresenceManager {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &PresenceManager{
		updater:    updater,
		guildCount: guildCount,
		logger:     logger,
		playing:    make(map[string]string),
		stop:       make(chan struct{}),
	}
}

// UpdateDefaultPresence shows how many servers the bot is in
func (pm *PresenceManager) UpdateDefaultPresence() {
	guilds := pm.guildCount()
	err := pm.updater.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  strconv.Itoa(guilds) + " servers",
				Type:  discordgo.ActivityTypeWatching,
				State: "!play to start the radio",
			},
		},
	})
	if err != nil {
		pm.logger.Warn("Failed to update bot presence", pipeline.Error(err))
	}

	pm.mu.Lock()
	pm.current = presenceDefault
	pm.mu.Unlock()
}

// UpdateMusicPresence shows trackName as the bot's listening activity
func (pm *PresenceManager) UpdateMusicPresence(trackName string) {
	err := pm.updater.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "to",
				Type:  discordgo.ActivityTypeListening,
				State: trackName,
			},
		},
	})
	if err != nil {
		pm.logger.Warn("Failed to update music presence", pipeline.Error(err))
	}

	pm.mu.Lock()
	pm.current = presenceMusic
	pm.mu.Unlock()
}

// GetCurrentPresence returns "default" or "music"
func (pm *PresenceManager) GetCurrentPresence() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.current
}

func (pm *PresenceManager) TrackStarted(e player.TrackEvent) {
	pm.mu.Lock()
	pm.playing[e.GuildID] = e.Track.Name
	pm.mu.Unlock()

	pm.UpdateMusicPresence(e.Track.Name)
}

func (pm *PresenceManager) SessionEnded(e player.SessionEvent) {
	pm.mu.Lock()
	delete(pm.playing, e.GuildID)
	var remaining string
	if len(pm.playing) > 0 {
		guilds := make([]string, 0, len(pm.playing))
		for id := range pm.playing {
			guilds = append(guilds, id)
		}
		sort.Strings(guilds)
		remaining = pm.playing[guilds[0]]
	}
	pm.mu.Unlock()

	if remaining != "" {
		pm.UpdateMusicPresence(remaining)
		return
	}
	pm.UpdateDefaultPresence()
}

// StartPeriodicUpdates refreshes the default presence every interval while
// nothing is playing
func (pm *PresenceManager) StartPeriodicUpdates(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-pm.stop:
				return
			case <-ticker.C:
				if pm.GetCurrentPresence() != presenceMusic {
					pm.UpdateDefaultPresence()
				}
			}
		}
	}()
}

// Stop ends periodic updates
func (pm *PresenceManager) Stop() {
	pm.stopOnce.Do(func() { close(pm.stop) })
}
