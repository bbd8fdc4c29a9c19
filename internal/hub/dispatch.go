package hub

import (
	"context"
	"time"

	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/events"
)

const dispatchTimeout = 15 * time.Second

// dispatch routes one decoded inbound frame. Every frame gets an ack; frames
// that produce data carry it in the ack, voice joins additionally get their
// token as a dedicated event.
func (h *Hub) dispatch(client *Client, frame []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	eventType, payload, err := events.Decode(frame)
	if err != nil {
		client.ack(eventType, err, nil)
		return
	}
	h.metrics.EventsDispatched.WithLabelValues(eventType).Inc()

	switch eventType {
	case events.TypeMessageSend:
		message, err := h.pipeline.Send(ctx, client.accountID, payload.(*events.MessageSend))
		if err != nil {
			client.ack(eventType, err, nil)
			return
		}
		client.ack(eventType, nil, message)

	case events.TypeMessageEdit:
		message, err := h.pipeline.Edit(ctx, client.accountID, payload.(*events.MessageEdit))
		if err != nil {
			client.ack(eventType, err, nil)
			return
		}
		client.ack(eventType, nil, message)

	case events.TypeMessageDelete:
		deleted, err := h.pipeline.Delete(ctx, client.accountID, payload.(*events.MessageDelete))
		if err != nil {
			client.ack(eventType, err, nil)
			return
		}
		client.ack(eventType, nil, deleted)

	case events.TypeReactionAdd, events.TypeReactionDel:
		update, err := h.pipeline.React(ctx, client.accountID, payload.(*events.Reaction), eventType == events.TypeReactionAdd)
		if err != nil {
			client.ack(eventType, err, nil)
			return
		}
		client.ack(eventType, nil, update)

	case events.TypeMarkRead:
		client.ack(eventType, h.pipeline.MarkRead(ctx, client.accountID, payload.(*events.MarkRead)), nil)

	case events.TypeTypingStart:
		client.ack(eventType, h.setTyping(ctx, client, payload.(*events.Typing).ChannelID, true), nil)

	case events.TypeTypingStop:
		client.ack(eventType, h.setTyping(ctx, client, payload.(*events.Typing).ChannelID, false), nil)

	case events.TypePresenceSet:
		client.ack(eventType, h.updatePresence(ctx, client, payload.(*events.PresenceSet).Status), nil)

	case events.TypeChannelFocus:
		client.ack(eventType, client.focusChannel(payload.(*events.ChannelFocus).ChannelID), nil)

	case events.TypeChannelBlur:
		client.ack(eventType, client.focusChannel(0), nil)

	case events.TypeVoiceJoin:
		token, err := h.voice.Join(ctx, client.accountID, payload.(*events.VoiceJoin).ChannelID)
		if err != nil {
			client.reply(events.TypeVoiceError, events.VoiceError{Message: err.Error()})
			client.ack(eventType, err, nil)
			return
		}
		client.setVoiceChannel(token.ChannelID)
		if err := client.sub.Join(events.VoiceRoom(token.ChannelID)); err != nil {
			h.sugar.Error(err)
		}
		client.reply(events.TypeVoiceToken, token)
		client.ack(eventType, nil, nil)

	case events.TypeVoiceLeave:
		channelID := payload.(*events.VoiceJoin).ChannelID
		err := h.voice.Leave(ctx, client.accountID, channelID)
		if err == nil {
			client.setVoiceChannel(0)
			if err := client.sub.Leave(events.VoiceRoom(channelID)); err != nil {
				h.sugar.Error(err)
			}
		}
		client.ack(eventType, err, nil)

	case events.TypeVoiceMute:
		state := payload.(*events.VoiceState)
		client.ack(eventType, h.voice.SetState(ctx, client.accountID, state.ChannelID, "mute", state.State), nil)

	case events.TypeVoiceDeafen:
		state := payload.(*events.VoiceState)
		client.ack(eventType, h.voice.SetState(ctx, client.accountID, state.ChannelID, "deafen", state.State), nil)
	}
}

// setTyping writes or clears the typing marker and tells the channel room.
// Markers also expire on their own; a stop frame just makes it immediate.
func (h *Hub) setTyping(ctx context.Context, client *Client, channelID int64, typing bool) error {
	key := ephemeral.TypingKey(channelID, client.accountID)
	var err error
	if typing {
		err = h.eph.SetWithTTL(ctx, key, map[string]string{"at": time.Now().UTC().Format(time.RFC3339)}, ephemeral.TypingTTL)
	} else {
		err = h.eph.Delete(ctx, key)
	}
	if err != nil {
		return err
	}

	update := events.TypingUpdate{ChannelID: channelID, UserID: client.accountID, Typing: typing}
	return h.broadcaster.Broadcast(ctx, events.ChannelRoom(channelID), events.TypeTypingUpdate, update)
}

func (h *Hub) updatePresence(ctx context.Context, client *Client, status string) error {
	guildIDs, err := h.store.GuildIDsForAccount(ctx, client.accountID)
	if err != nil {
		return err
	}
	return h.setPresence(ctx, client.accountID, status, guildIDs)
}

// focusChannel moves the session between channel rooms. One focus room per
// session; focusing a new channel implicitly blurs the old one.
func (c *Client) focusChannel(channelID int64) error {
	c.mutex.Lock()
	previous := c.focusedChannel
	c.focusedChannel = channelID
	c.mutex.Unlock()

	if previous == channelID {
		return nil
	}
	if previous != 0 {
		if err := c.sub.Leave(events.ChannelRoom(previous)); err != nil {
			return err
		}
	}
	if channelID != 0 {
		return c.sub.Join(events.ChannelRoom(channelID))
	}
	return nil
}

func (c *Client) setVoiceChannel(channelID int64) {
	c.mutex.Lock()
	c.voiceChannel = channelID
	c.mutex.Unlock()
}
