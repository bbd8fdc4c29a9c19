package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/models"
)

// Notifier is the delivery transport for push notifications. Delivery
// mechanics live outside the gateway; the gateway only decides when to fan
// out.
type Notifier interface {
	Push(ctx context.Context, accountID int64, notification Notification) error
}

type Notification struct {
	GuildID   int64
	ChannelID int64
	MessageID int64
	Title     string
	Body      string
}

// LogNotifier is the default transport: it just records the decision.
type LogNotifier struct {
	Sugar *zap.SugaredLogger
}

func (n *LogNotifier) Push(ctx context.Context, accountID int64, notification Notification) error {
	n.Sugar.Infof("Push to account %d: %s", accountID, notification.Title)
	return nil
}

// fanOutPush notifies guild members without a live presence key. Each
// recipient fails independently; one dead device never blocks the rest.
func (p *Pipeline) fanOutPush(ctx context.Context, guildID int64, message models.Message, authorName string) {
	memberIDs, err := p.store.GuildMemberIDs(ctx, guildID)
	if err != nil {
		p.sugar.Errorf("Push fan-out aborted, member list unavailable: %v", err)
		return
	}

	notification := Notification{
		GuildID:   guildID,
		ChannelID: message.ChannelID,
		MessageID: message.ID,
		Title:     authorName,
		Body:      message.Content,
	}

	var wg sync.WaitGroup
	for _, memberID := range memberIDs {
		if memberID == message.AuthorID {
			continue
		}

		online, err := p.eph.Exists(ctx, ephemeral.PresenceKey(memberID))
		if err != nil {
			p.sugar.Warnf("Presence lookup for account %d failed, pushing anyway: %v", memberID, err)
		}
		if online {
			continue
		}

		wg.Add(1)
		go func(accountID int64) {
			defer wg.Done()
			p.metrics.PushAttempts.Inc()
			if err := p.notifier.Push(ctx, accountID, notification); err != nil {
				p.metrics.PushFailures.Inc()
				p.sugar.Warnf("Push to account %d failed: %v", accountID, err)
			}
		}(memberID)
	}
	wg.Wait()
}
