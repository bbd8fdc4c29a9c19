package events

import "fmt"

// Room names key the cross-node bus. A connection's room set decides which
// broadcasts it receives.

func UserRoom(accountID int64) string {
	return fmt.Sprintf("user:%d", accountID)
}

func GuildRoom(guildID int64) string {
	return fmt.Sprintf("guild:%d", guildID)
}

// ChannelRoom is the focus room for channel-scoped broadcasts; a connection
// is in at most one at a time.
func ChannelRoom(channelID int64) string {
	return fmt.Sprintf("channel:%d", channelID)
}

func VoiceRoom(channelID int64) string {
	return fmt.Sprintf("voice:%d", channelID)
}
