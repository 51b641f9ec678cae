// Package alert pushes operator notifications for swap failures that need
// manual intervention.
package alert

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Notifier is pinged when a swap reaches a failure state.
type Notifier interface {
	Notify(swapID, status, message string)
}

// NewNoop returns a Notifier that does nothing, used when no alert channel
// is configured.
func NewNoop() Notifier {
	return noop{}
}

type noop struct{}

func (noop) Notify(string, string, string) {}

type discordNotifier struct {
	session   *discordgo.Session
	channelID string
	logger    *zap.Logger
}

// NewDiscord returns a Notifier posting to a Discord channel. Failures to
// deliver are logged, never propagated; alerting must not affect swap
// processing.
func NewDiscord(botToken, channelID string, logger *zap.Logger) (Notifier, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &discordNotifier{session: session, channelID: channelID, logger: logger}, nil
}

func (d *discordNotifier) Notify(swapID, status, message string) {
	content := fmt.Sprintf("swap %v entered %v: %v", swapID, status, message)
	if _, err := d.session.ChannelMessageSend(d.channelID, content); err != nil {
		d.logger.Warn("failed to deliver alert", zap.String("swap", swapID), zap.Error(err))
	}
}
