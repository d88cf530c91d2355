// Package transfer moves finalized uploads from local staging into
// durable object storage through a Redis-backed task queue. Enqueueing
// is fire-and-forget from the upload pipeline's point of view; the
// worker side tolerates duplicate messages for the same hash.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

// TypeMigrate identifies a staged-file migration task.
const TypeMigrate = "transfer:migrate"

// MigratePayload asks the worker to move Source into object storage
// under Dest. Hash is the deduplication key of the content.
type MigratePayload struct {
	Hash   string `json:"hash"`
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

func redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	}
}

// Publisher enqueues migration tasks.
type Publisher struct {
	client *asynq.Client
}

func NewPublisher() *Publisher {
	return &Publisher{client: asynq.NewClient(redisOpt())}
}

func (p *Publisher) PublishMigration(ctx context.Context, hash, source, dest string) error {
	payload, err := json.Marshal(MigratePayload{
		Hash:   hash,
		Source: source,
		Dest:   dest,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal migration payload, %w", err)
	}

	_, err = p.client.EnqueueContext(ctx,
		asynq.NewTask(TypeMigrate, payload),
		asynq.Queue("transfer"),
		asynq.MaxRetry(10),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue migration task, %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
