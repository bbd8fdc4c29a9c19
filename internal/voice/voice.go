// Package voice brokers access to the external media server. The gateway
// never relays audio; it authorizes channel entry, mints short-lived media
// grants and rebroadcasts room membership changes.
package voice

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/events"
	"guildgate-backend/internal/jwt"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/permissions"
	"guildgate-backend/internal/store"
)

// Broadcaster publishes an event to every subscriber of a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, eventType string, data any) error
}

type Bridge struct {
	sugar         *zap.SugaredLogger
	store         *store.Store
	perms         *permissions.Engine
	signer        *jwt.Signer
	broadcaster   Broadcaster
	mediaUrl      string
	webhookSecret []byte
}

func New(
	sugar *zap.SugaredLogger,
	st *store.Store,
	perms *permissions.Engine,
	signer *jwt.Signer,
	broadcaster Broadcaster,
	mediaUrl string,
	webhookSecret string,
) *Bridge {
	return &Bridge{
		sugar:         sugar,
		store:         st,
		perms:         perms,
		signer:        signer,
		broadcaster:   broadcaster,
		mediaUrl:      mediaUrl,
		webhookSecret: []byte(webhookSecret),
	}
}

// Join authorizes entry into a voice channel and mints a media grant. The
// grant is the client's ticket to the media server; the gateway's only
// ongoing involvement is signaling.
func (b *Bridge) Join(ctx context.Context, accountID int64, channelID int64) (events.VoiceToken, error) {
	channel, err := b.store.ChannelByID(ctx, channelID)
	if err != nil {
		return events.VoiceToken{}, err
	}
	if channel.Kind != models.ChannelKindVoice {
		return events.VoiceToken{}, fmt.Errorf("%w: channel %d is not a voice channel", apperr.ErrValidation, channelID)
	}

	allowed, err := b.perms.Authorize(ctx, accountID, channel.GuildID, permissions.Connect)
	if err != nil {
		return events.VoiceToken{}, err
	}
	if !allowed {
		return events.VoiceToken{}, fmt.Errorf("%w: CONNECT in guild %d", apperr.ErrForbidden, channel.GuildID)
	}

	token, err := b.signer.CreateVoiceGrant(accountID, events.VoiceRoom(channelID))
	if err != nil {
		return events.VoiceToken{}, fmt.Errorf("%w: signing voice grant: %v", apperr.ErrDependency, err)
	}

	joined := events.VoiceUser{ChannelID: channelID, UserID: accountID}
	b.announce(ctx, channel.GuildID, channelID, events.TypeVoiceUserJoined, joined)

	return events.VoiceToken{Token: token, MediaUrl: b.mediaUrl, ChannelID: channelID}, nil
}

func (b *Bridge) Leave(ctx context.Context, accountID int64, channelID int64) error {
	channel, err := b.store.ChannelByID(ctx, channelID)
	if err != nil {
		return err
	}

	left := events.VoiceUser{ChannelID: channelID, UserID: accountID}
	b.announce(ctx, channel.GuildID, channelID, events.TypeVoiceUserLeft, left)
	return nil
}

// announce fans an occupancy change out to the participants already in the
// voice room and to the surrounding guild, so channel member lists stay
// current for everyone.
func (b *Bridge) announce(ctx context.Context, guildID int64, channelID int64, eventType string, data any) {
	for _, room := range []string{events.VoiceRoom(channelID), events.GuildRoom(guildID)} {
		if err := b.broadcaster.Broadcast(ctx, room, eventType, data); err != nil {
			b.sugar.Error(err)
		}
	}
}

// SetState rebroadcasts a mute or deafen toggle. State is client-asserted;
// the media server enforces actual publishing rights through the grant.
func (b *Bridge) SetState(ctx context.Context, accountID int64, channelID int64, kind string, state bool) error {
	if _, err := b.store.ChannelByID(ctx, channelID); err != nil {
		return err
	}

	changed := events.VoiceStateChanged{ChannelID: channelID, UserID: accountID, Kind: kind, State: state}
	if err := b.broadcaster.Broadcast(ctx, events.VoiceRoom(channelID), events.TypeVoiceState, changed); err != nil {
		b.sugar.Error(err)
	}
	return nil
}

// WebhookEvent is the media server's callback shape for room membership
// changes it observed on its side, like a participant timing out.
type WebhookEvent struct {
	Event     string `json:"event"`
	Room      string `json:"room"`
	AccountID int64  `json:"accountID,string"`
	ChannelID int64  `json:"channelID,string"`
}

// VerifySignature checks the HMAC-SHA256 hex signature the media server
// attaches to webhook deliveries.
func (b *Bridge) VerifySignature(signature string, body []byte) bool {
	mac := hmac.New(sha256.New, b.webhookSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleWebhook translates a verified media server callback into gateway
// broadcasts, so clients learn about departures the gateway never saw.
func (b *Bridge) HandleWebhook(ctx context.Context, body []byte) error {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: malformed webhook body: %v", apperr.ErrValidation, err)
	}

	switch event.Event {
	case "participant_left", "participant_timeout":
		return b.Leave(ctx, event.AccountID, event.ChannelID)
	case "participant_joined":
		channel, err := b.store.ChannelByID(ctx, event.ChannelID)
		if err != nil {
			return err
		}
		joined := events.VoiceUser{ChannelID: event.ChannelID, UserID: event.AccountID}
		b.announce(ctx, channel.GuildID, event.ChannelID, events.TypeVoiceUserJoined, joined)
		return nil
	default:
		b.sugar.Warnf("Ignoring unknown media webhook event %q", event.Event)
		return nil
	}
}
