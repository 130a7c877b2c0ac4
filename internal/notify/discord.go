// Package notify posts divergence alerts to a Discord channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/contactkeval/btc-iv-compare/internal/compare"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
)

// maxMessageLen is Discord's message size limit.
const maxMessageLen = 2000

const truncatedTail = "...\n```"

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord sends alerts through a bot session. A nil *Discord is disabled.
type Discord struct {
	ChannelID string
	session   messageSender
}

// NewDiscord creates a bot session for token. It returns nil, without error, when token or
// channelID is empty so callers can treat alerts as optional.
func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" || channelID == "" {
		logger.Debugf("discord alerts disabled")
		return nil, nil
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{ChannelID: channelID, session: s}, nil
}

// Notify posts the report's divergences. Nothing is sent when there are none.
func (d *Discord) Notify(ctx context.Context, rep *compare.Report) error {
	if d == nil || len(rep.Divergences) == 0 {
		return nil
	}

	msg := FormatDivergences(rep)
	if _, err := d.session.ChannelMessageSend(d.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord alert: %w", err)
	}
	logger.Infof("sent %d divergences to discord", len(rep.Divergences))
	return nil
}

// FormatDivergences creates a Discord message from a report's divergences.
func FormatDivergences(rep *compare.Report) string {
	var sb strings.Builder

	sb.WriteString("🚨 **IV divergences**\n")
	sb.WriteString(fmt.Sprintf("%s %s | threshold %.2f | run %s\n",
		rep.ETF, rep.Expiry.Format("2006-01-02"), rep.Threshold, rep.RunID))

	sb.WriteString("```\n")
	for _, d := range rep.Divergences {
		line := fmt.Sprintf("%-9s %-18s %+.4f\n", d.Bucket, d.Leg, d.Spread)
		if sb.Len()+len(line)+len(truncatedTail) > maxMessageLen {
			sb.WriteString("...\n")
			break
		}
		sb.WriteString(line)
	}
	sb.WriteString("```")

	return sb.String()
}
