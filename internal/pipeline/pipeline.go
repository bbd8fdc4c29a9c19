// Package pipeline carries a message operation from validation through
// persistence, encryption and broadcast. Enrichment and push fan-out run
// detached: they may fail loudly in the log but never fail the send.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/crypto"
	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/events"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/observability"
	"guildgate-backend/internal/permissions"
	"guildgate-backend/internal/snowflake"
	"guildgate-backend/internal/store"
)

// Broadcaster publishes an event to every connection in a room, fleet-wide.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, eventType string, data any) error
}

type Pipeline struct {
	sugar       *zap.SugaredLogger
	store       *store.Store
	codec       *crypto.Codec
	perms       *permissions.Engine
	broadcaster Broadcaster
	eph         *ephemeral.Store
	notifier    Notifier
	generator   *snowflake.Generator
	validate    *validator.Validate
	metrics     *observability.Metrics
	previewer   *http.Client
}

func New(
	sugar *zap.SugaredLogger,
	st *store.Store,
	codec *crypto.Codec,
	perms *permissions.Engine,
	broadcaster Broadcaster,
	eph *ephemeral.Store,
	notifier Notifier,
	generator *snowflake.Generator,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		sugar:       sugar,
		store:       st,
		codec:       codec,
		perms:       perms,
		broadcaster: broadcaster,
		eph:         eph,
		notifier:    notifier,
		generator:   generator,
		validate:    validator.New(),
		metrics:     metrics,
		previewer:   &http.Client{Timeout: previewTimeout},
	}
}

func (p *Pipeline) validateStruct(payload any) error {
	err := p.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var validateErrs validator.ValidationErrors
	if errors.As(err, &validateErrs) {
		fields := make(map[string]string)
		for _, e := range validateErrs {
			fields[e.Field()] = e.Tag()
		}
		return &apperr.FieldErrors{Fields: fields}
	}
	return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
}

// Send persists and broadcasts a new message. Membership and the
// SendMessages bit are re-checked here, not at connect time: both can have
// changed since the connection was opened.
func (p *Pipeline) Send(ctx context.Context, authorID int64, req *events.MessageSend) (models.Message, error) {
	if err := p.validateStruct(req); err != nil {
		return models.Message{}, err
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		return models.Message{}, &apperr.FieldErrors{Fields: map[string]string{"content": "required"}}
	}

	channel, err := p.store.ChannelByID(ctx, req.ChannelID)
	if err != nil {
		return models.Message{}, err
	}
	if channel.Kind != models.ChannelKindText {
		return models.Message{}, fmt.Errorf("%w: messages go to text channels", apperr.ErrValidation)
	}

	allowed, err := p.perms.Authorize(ctx, authorID, channel.GuildID, permissions.SendMessages)
	if err != nil {
		return models.Message{}, err
	}
	if !allowed {
		return models.Message{}, fmt.Errorf("%w: SEND_MESSAGES in guild %d", apperr.ErrForbidden, channel.GuildID)
	}

	if req.ReplyToID != 0 {
		replyChannelID, _, err := p.store.MessageMeta(ctx, req.ReplyToID)
		if err != nil {
			return models.Message{}, err
		}
		if replyChannelID != req.ChannelID {
			return models.Message{}, fmt.Errorf("%w: reply target is in another channel", apperr.ErrValidation)
		}
	}

	messageID, err := p.generator.Generate()
	if err != nil {
		return models.Message{}, err
	}

	body, err := p.codec.Encode(req.Content)
	if err != nil {
		return models.Message{}, err
	}

	message := models.Message{
		ID:          messageID,
		ChannelID:   req.ChannelID,
		AuthorID:    authorID,
		Content:     req.Content,
		Attachments: req.Attachments,
		ReplyToID:   req.ReplyToID,
	}
	if message.Attachments == nil {
		message.Attachments = []models.Attachment{}
	}

	if err := p.store.InsertMessage(ctx, message, body); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", apperr.ErrDependency, err)
	}

	author, err := p.store.AccountByID(ctx, authorID)
	if err != nil {
		return models.Message{}, err
	}
	message.Author = models.Account{ID: author.ID, DisplayName: author.DisplayName, Picture: author.Picture}

	// ciphertext never reaches the wire: the broadcast carries the plaintext
	// the sender just gave us
	err = p.broadcaster.Broadcast(ctx, events.ChannelRoom(message.ChannelID), events.TypeMessageNew, events.MessageNew{Message: message})
	if err != nil {
		p.sugar.Error(err)
	}

	err = p.broadcaster.Broadcast(ctx, events.GuildRoom(channel.GuildID), events.TypeUnreadIncrement,
		events.UnreadIncrement{GuildID: channel.GuildID, ChannelID: message.ChannelID})
	if err != nil {
		p.sugar.Error(err)
	}

	p.countMentions(ctx, channel.GuildID, message.ChannelID, authorID, req.Content)

	p.detach("link-preview", func(ctx context.Context) {
		p.enrichPreview(ctx, message.ID, message.ChannelID, req.Content)
	})
	p.detach("push-fanout", func(ctx context.Context) {
		p.fanOutPush(ctx, channel.GuildID, message, author.DisplayName)
	})

	return message, nil
}

// Edit re-encrypts the body under a fresh subkey and broadcasts the update.
// Only the original author may edit.
func (p *Pipeline) Edit(ctx context.Context, editorID int64, req *events.MessageEdit) (models.Message, error) {
	if err := p.validateStruct(req); err != nil {
		return models.Message{}, err
	}

	_, authorID, err := p.store.MessageMeta(ctx, req.MessageID)
	if err != nil {
		return models.Message{}, err
	}
	if authorID != editorID {
		return models.Message{}, fmt.Errorf("%w: only the author may edit", apperr.ErrForbidden)
	}

	body, err := p.codec.Encode(req.Content)
	if err != nil {
		return models.Message{}, err
	}
	if err := p.store.UpdateMessageBody(ctx, req.MessageID, body); err != nil {
		return models.Message{}, err
	}

	message, err := p.store.MessageByID(ctx, req.MessageID)
	if err != nil {
		return models.Message{}, err
	}
	message.Content = req.Content

	err = p.broadcaster.Broadcast(ctx, events.ChannelRoom(message.ChannelID), events.TypeMessageUpdated, events.MessageUpdated{Message: message})
	if err != nil {
		p.sugar.Error(err)
	}

	return message, nil
}

// Delete hard-deletes the row. Only the original author may delete;
// moderator override is an extension point, not core behavior.
func (p *Pipeline) Delete(ctx context.Context, requesterID int64, req *events.MessageDelete) (events.MessageDeleted, error) {
	if err := p.validateStruct(req); err != nil {
		return events.MessageDeleted{}, err
	}

	channelID, authorID, err := p.store.MessageMeta(ctx, req.MessageID)
	if err != nil {
		return events.MessageDeleted{}, err
	}
	if authorID != requesterID {
		return events.MessageDeleted{}, fmt.Errorf("%w: only the author may delete", apperr.ErrForbidden)
	}

	if err := p.store.DeleteMessage(ctx, req.MessageID); err != nil {
		return events.MessageDeleted{}, fmt.Errorf("%w: %v", apperr.ErrDependency, err)
	}

	deleted := events.MessageDeleted{MessageID: req.MessageID, ChannelID: channelID}
	err = p.broadcaster.Broadcast(ctx, events.ChannelRoom(channelID), events.TypeMessageDeleted, deleted)
	if err != nil {
		p.sugar.Error(err)
	}

	return deleted, nil
}

// React adds or removes a reaction. Duplicate adds are no-ops and broadcast
// nothing.
func (p *Pipeline) React(ctx context.Context, accountID int64, req *events.Reaction, add bool) (events.ReactionUpdate, error) {
	if err := p.validateStruct(req); err != nil {
		return events.ReactionUpdate{}, err
	}

	channelID, _, err := p.store.MessageMeta(ctx, req.MessageID)
	if err != nil {
		return events.ReactionUpdate{}, err
	}
	channel, err := p.store.ChannelByID(ctx, channelID)
	if err != nil {
		return events.ReactionUpdate{}, err
	}

	if add {
		allowed, err := p.perms.Authorize(ctx, accountID, channel.GuildID, permissions.AddReactions)
		if err != nil {
			return events.ReactionUpdate{}, err
		}
		if !allowed {
			return events.ReactionUpdate{}, fmt.Errorf("%w: ADD_REACTIONS in guild %d", apperr.ErrForbidden, channel.GuildID)
		}
	}

	reaction := models.Reaction{MessageID: req.MessageID, AccountID: accountID, Emoji: req.Emoji}

	var changed bool
	if add {
		changed, err = p.store.AddReaction(ctx, reaction)
	} else {
		changed, err = p.store.RemoveReaction(ctx, reaction)
	}
	if err != nil {
		return events.ReactionUpdate{}, fmt.Errorf("%w: %v", apperr.ErrDependency, err)
	}

	update := events.ReactionUpdate{
		MessageID: req.MessageID,
		ChannelID: channelID,
		UserID:    accountID,
		Emoji:     req.Emoji,
		Added:     add,
	}

	if changed {
		err = p.broadcaster.Broadcast(ctx, events.ChannelRoom(channelID), events.TypeReactionUpdate, update)
		if err != nil {
			p.sugar.Error(err)
		}
	}

	return update, nil
}

// MarkRead moves the caller's read cursor. No broadcast.
func (p *Pipeline) MarkRead(ctx context.Context, accountID int64, req *events.MarkRead) error {
	if err := p.validateStruct(req); err != nil {
		return err
	}
	if err := p.store.UpsertReadState(ctx, accountID, req.ChannelID, req.MessageID); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrDependency, err)
	}
	return nil
}

// detach runs fn on its own goroutine with its own deadline. Errors are the
// task's to log; a panic is caught so a side effect can never take down the
// reader loop that triggered it.
func (p *Pipeline) detach(name string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.sugar.Errorf("Detached task %s panicked: %v", name, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		fn(ctx)
	}()
}
