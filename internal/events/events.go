// Package events defines the gateway wire format: every frame is an envelope
// carrying a type tag and one well-typed payload. Decoding happens once, at
// the gateway boundary; everything past it works with typed structs.
package events

import (
	"encoding/json"
	"fmt"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/models"
)

// Inbound event types.
const (
	TypeMessageSend   = "message:send"
	TypeMessageEdit   = "message:edit"
	TypeMessageDelete = "message:delete"
	TypeTypingStart   = "typing:start"
	TypeTypingStop    = "typing:stop"
	TypePresenceSet   = "presence:update"
	TypeChannelFocus  = "channel:focus"
	TypeChannelBlur   = "channel:blur"
	TypeMarkRead      = "channel:mark_read"
	TypeReactionAdd   = "reaction:add"
	TypeReactionDel   = "reaction:remove"
	TypeVoiceJoin     = "voice:join"
	TypeVoiceLeave    = "voice:leave"
	TypeVoiceMute     = "voice:mute"
	TypeVoiceDeafen   = "voice:deafen"
)

// Outbound event types.
const (
	TypeAck             = "ack"
	TypeMessageNew      = "message:new"
	TypeMessageUpdated  = "message:updated"
	TypeMessageDeleted  = "message:deleted"
	TypeTypingUpdate    = "typing:update"
	TypePresenceChanged = "presence:changed"
	TypeUnreadIncrement = "unread:increment"
	TypeReactionUpdate  = "reaction:update"
	TypeVoiceToken      = "voice:token"
	TypeVoiceError      = "voice:error"
	TypeVoiceUserJoined = "voice:user_joined"
	TypeVoiceUserLeft   = "voice:user_left"
	TypeVoiceState      = "voice:state"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type MessageSend struct {
	ChannelID   int64               `json:"channelID,string" validate:"required"`
	Content     string              `json:"content" validate:"max=4000"`
	Attachments []models.Attachment `json:"attachments" validate:"max=10,dive"`
	ReplyToID   int64               `json:"replyToID,string,omitempty"`
}

type MessageEdit struct {
	MessageID int64  `json:"messageID,string" validate:"required"`
	Content   string `json:"content" validate:"required,max=4000"`
}

type MessageDelete struct {
	MessageID int64 `json:"messageID,string" validate:"required"`
}

type Typing struct {
	ChannelID int64 `json:"channelID,string" validate:"required"`
}

type PresenceSet struct {
	Status string `json:"status" validate:"required,oneof=online idle dnd offline"`
}

type ChannelFocus struct {
	ChannelID int64 `json:"channelID,string" validate:"required"`
}

type MarkRead struct {
	ChannelID int64 `json:"channelID,string" validate:"required"`
	MessageID int64 `json:"messageID,string" validate:"required"`
}

type Reaction struct {
	MessageID int64  `json:"messageID,string" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

type VoiceJoin struct {
	ChannelID int64 `json:"channelID,string" validate:"required"`
}

type VoiceState struct {
	ChannelID int64 `json:"channelID,string" validate:"required"`
	State     bool  `json:"state"`
}

type Ack struct {
	For     string            `json:"for"`
	Success bool              `json:"success"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Data    any               `json:"data,omitempty"`
}

type MessageNew struct {
	Message models.Message `json:"message"`
}

type MessageUpdated struct {
	Message models.Message `json:"message"`
}

type MessageDeleted struct {
	MessageID int64 `json:"messageID,string"`
	ChannelID int64 `json:"channelID,string"`
}

type TypingUpdate struct {
	ChannelID int64 `json:"channelID,string"`
	UserID    int64 `json:"userID,string"`
	Typing    bool  `json:"typing"`
}

type PresenceChanged struct {
	UserID int64  `json:"userID,string"`
	Status string `json:"status"`
}

type UnreadIncrement struct {
	GuildID   int64 `json:"guildID,string"`
	ChannelID int64 `json:"channelID,string"`
}

type ReactionUpdate struct {
	MessageID int64  `json:"messageID,string"`
	ChannelID int64  `json:"channelID,string"`
	UserID    int64  `json:"userID,string"`
	Emoji     string `json:"emoji"`
	Added     bool   `json:"added"`
}

type VoiceToken struct {
	Token     string `json:"token"`
	MediaUrl  string `json:"mediaUrl"`
	ChannelID int64  `json:"channelID,string"`
}

type VoiceError struct {
	Message string `json:"message"`
}

type VoiceUser struct {
	ChannelID int64 `json:"channelID,string"`
	UserID    int64 `json:"userID,string"`
}

type VoiceStateChanged struct {
	ChannelID int64  `json:"channelID,string"`
	UserID    int64  `json:"userID,string"`
	Kind      string `json:"kind"`
	State     bool   `json:"state"`
}

// Decode parses one inbound frame into its typed payload. Unknown types and
// malformed payloads are validation failures, surfaced through the ack.
func Decode(frame []byte) (string, any, error) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: malformed envelope: %v", apperr.ErrValidation, err)
	}

	var payload any
	switch envelope.Type {
	case TypeMessageSend:
		payload = &MessageSend{}
	case TypeMessageEdit:
		payload = &MessageEdit{}
	case TypeMessageDelete:
		payload = &MessageDelete{}
	case TypeTypingStart, TypeTypingStop:
		payload = &Typing{}
	case TypePresenceSet:
		payload = &PresenceSet{}
	case TypeChannelFocus, TypeChannelBlur:
		payload = &ChannelFocus{}
	case TypeMarkRead:
		payload = &MarkRead{}
	case TypeReactionAdd, TypeReactionDel:
		payload = &Reaction{}
	case TypeVoiceJoin, TypeVoiceLeave:
		payload = &VoiceJoin{}
	case TypeVoiceMute, TypeVoiceDeafen:
		payload = &VoiceState{}
	default:
		return "", nil, fmt.Errorf("%w: unknown event type %q", apperr.ErrValidation, envelope.Type)
	}

	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return "", nil, fmt.Errorf("%w: malformed %s payload: %v", apperr.ErrValidation, envelope.Type, err)
	}

	return envelope.Type, payload, nil
}

// Encode wraps an outbound payload in the envelope.
func Encode(eventType string, data any) ([]byte, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: dataBytes})
}
