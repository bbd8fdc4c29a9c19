// Package migrate upgrades message rows written before at-rest encryption.
// It runs offline, batch by batch, and is safe to interrupt and rerun:
// rows that already parse as encrypted payloads are skipped.
package migrate

import (
	"context"

	"go.uber.org/zap"

	"guildgate-backend/internal/crypto"
	"guildgate-backend/internal/store"
)

const batchSize = 500

type Job struct {
	sugar *zap.SugaredLogger
	store *store.Store
	codec *crypto.Codec
}

func New(sugar *zap.SugaredLogger, st *store.Store, codec *crypto.Codec) *Job {
	return &Job{sugar: sugar, store: st, codec: codec}
}

// Run walks every message row and encrypts the ones still in plaintext.
// Returns how many rows were rewritten.
func (j *Job) Run(ctx context.Context) (int, error) {
	var afterID int64
	var migrated, scanned int

	for {
		bodies, err := j.store.MessageBodiesAfter(ctx, afterID, batchSize)
		if err != nil {
			return migrated, err
		}
		if len(bodies) == 0 {
			break
		}

		for _, body := range bodies {
			afterID = body.MessageID
			scanned++

			if crypto.IsEncrypted(body.Body) {
				continue
			}

			encrypted, err := j.codec.Encode(body.Body)
			if err != nil {
				return migrated, err
			}
			if err := j.store.RewriteMessageBody(ctx, body.MessageID, encrypted); err != nil {
				return migrated, err
			}
			migrated++
		}

		j.sugar.Infof("Encryption migration: %d rows scanned, %d rewritten", scanned, migrated)

		if err := ctx.Err(); err != nil {
			return migrated, err
		}
	}

	return migrated, nil
}
