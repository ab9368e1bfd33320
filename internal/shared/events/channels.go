package events

import "strings"

const (
	channelPrefix    = "realtime:"
	broadcastSegment = "broadcast"

	// ChannelPattern matches every realtime channel.
	ChannelPattern = channelPrefix + "*"
)

func AudienceChannel(audienceType string, audienceID string) string {
	return channelPrefix + strings.ToLower(strings.TrimSpace(audienceType)) + ":" + strings.TrimSpace(audienceID)
}

func BroadcastChannel(class string) string {
	return channelPrefix + broadcastSegment + ":" + strings.ToLower(strings.TrimSpace(class))
}
