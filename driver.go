package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

type DriverConfig struct {
	QueueName  string
	FetchCount int
	// treat a fetch with no message as a no-op iteration instead of a decode error
	SkipEmpty bool
	// remove consumed messages from the queue once the transaction is committed
	DeleteAfterCommit bool
	// column receiving the queue message id, the key that makes a redelivered
	// message conflict with its first insert; empty leaves the record as is
	MessageIDColumn string
}

// Driver drains FetchCount messages into one transaction and commits once.
// It is strictly sequential and owns the queue and store for the whole run.
type Driver struct {
	config DriverConfig
	queue  Queue
	store  Store
	writer *RowWriter
	masker *Masker
	state  DriverState
}

func NewDriver(config DriverConfig, queue Queue, store Store, writer *RowWriter, masker *Masker) *Driver {
	return &Driver{
		config: config,
		queue:  queue,
		store:  store,
		writer: writer,
		masker: masker,
		state:  StateFetching,
	}
}

func (d *Driver) State() DriverState {
	return d.state
}

// Run executes one full drain and closes the store when it returns. Any error
// rolls back every write made during the run and is returned as is, nothing
// is retried.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: xid.New().String()}
	rl := log.With().Str("run_id", summary.RunID).Logger()

	d.state = StateFetching
	defer func() {
		if err := d.store.Close(); err != nil {
			rl.Error().Err(err).Msg("Failed to close database")
		}
		d.state = StateDone
	}()

	// resolved once for the lifetime of the run
	queueURL, err := d.queue.ResolveQueueAddress(ctx, d.config.QueueName)
	if err != nil {
		return summary, err
	}
	rl.Info().Str("queue_url", queueURL).Int("fetch_count", d.config.FetchCount).Msg("Starting run")

	tx, err := d.store.Begin(ctx)
	if err != nil {
		return summary, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			rl.Error().Err(rbErr).Msg("Failed to roll back transaction")
		} else {
			rl.Warn().Int("discarded_rows", summary.Inserted).Msg("Run aborted, transaction rolled back")
		}
	}()

	var receipts []string
	for i := 1; i <= d.config.FetchCount; i++ {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run cancelled at message %d of %d: %w", i, d.config.FetchCount, err)
		}

		d.state = StateFetching
		env, err := d.queue.FetchOne(ctx, queueURL)
		if err != nil {
			return summary, fmt.Errorf("message %d of %d: %w", i, d.config.FetchCount, err)
		}

		d.state = StateProcessing
		rec, err := TransformEnvelope(env, d.masker)
		if errors.Is(err, ErrEmptyEnvelope) && d.config.SkipEmpty {
			summary.Empty++
			rl.Debug().Int("iteration", i).Msg("Queue returned no message")
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("message %d of %d: %w", i, d.config.FetchCount, err)
		}
		summary.Fetched++

		msg := env.Messages[0]
		if d.config.MessageIDColumn != "" {
			if msg.ID == "" {
				return summary, fmt.Errorf("message %d of %d: %w", i, d.config.FetchCount, decodeErrorf("message has no id"))
			}
			rec[d.config.MessageIDColumn] = msg.ID
		}
		inserted, err := d.writer.Write(ctx, tx, rec)
		if err != nil {
			return summary, fmt.Errorf("message %d of %d (%s): %w", i, d.config.FetchCount, msg.ID, err)
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Skipped++
			rl.Debug().Str("message_id", msg.ID).Msg("Row already present, insert skipped")
		}
		receipts = append(receipts, msg.ReceiptHandle)
	}

	if err := tx.Commit(); err != nil {
		// a failed commit leaves nothing to roll back
		committed = true
		return summary, persistenceErrorf("commit failed: %v", err)
	}
	committed = true

	if d.config.DeleteAfterCommit {
		for _, receipt := range receipts {
			if err := d.queue.DeleteMessage(ctx, queueURL, receipt); err != nil {
				summary.DeleteFailures++
				rl.Error().Err(err).Msg("Failed to delete message after commit")
				continue
			}
			summary.Deleted++
		}
	}

	rl.Info().
		Int("fetched", summary.Fetched).
		Int("inserted", summary.Inserted).
		Int("skipped", summary.Skipped).
		Int("empty", summary.Empty).
		Int("deleted", summary.Deleted).
		Int("delete_failures", summary.DeleteFailures).
		Msg("Run committed")

	return summary, nil
}

// TransformEnvelope runs decode, normalize and mask on the first message of env.
func TransformEnvelope(env *Envelope, masker *Masker) (Record, error) {
	rec, date, err := DecodeEnvelope(env)
	if err != nil {
		return nil, err
	}
	if err := Normalize(rec, date); err != nil {
		return nil, err
	}
	if err := masker.Apply(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
