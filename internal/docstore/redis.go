package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"eunify/feed/internal/util"
)

// Redis implements Store on a redis server. Each collection lives in one hash
// (field per document id, JSON body) and each collection has a pub/sub channel
// that carries change notifications for observers.
type Redis struct {
	client *redis.Client
}

func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(path string) string {
	return "docs:" + path
}

func redisChannel(path string) string {
	return "docs:" + path + ":changes"
}

func (s *Redis) Add(ctx context.Context, path string, data map[string]any) (string, error) {
	body, err := encodeBody(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	id := util.NewID()
	if err := s.client.HSet(ctx, redisKey(path), id, body).Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	s.notify(ctx, path, id)
	return id, nil
}

func (s *Redis) Update(ctx context.Context, path, id string, patch map[string]any) error {
	return s.mergeWrite(ctx, path, id, patch, true, ErrUpdateFailed)
}

func (s *Redis) Set(ctx context.Context, path, id string, data map[string]any) error {
	return s.mergeWrite(ctx, path, id, data, false, ErrWriteFailed)
}

// mergeRetries bounds optimistic retries when concurrent merges collide.
const mergeRetries = 10

// mergeWrite merges patch into the stored document under WATCH, so two
// concurrent merges of the same document never lose each other's fields; a
// write that lands between the read and the EXEC aborts the transaction and
// the merge is retried on fresh state.
func (s *Redis) mergeWrite(ctx context.Context, path, id string, patch map[string]any, mustExist bool, sentinel error) error {
	key := redisKey(path)
	merge := func(tx *redis.Tx) error {
		data := map[string]any{}
		raw, err := tx.HGet(ctx, key, id).Result()
		switch {
		case err == redis.Nil:
			if mustExist {
				return fmt.Errorf("%w: document %s/%s not found", sentinel, path, id)
			}
		case err != nil:
			return err
		default:
			doc, err := decodeBody(id, []byte(raw))
			if err != nil {
				return err
			}
			data = doc.Data
		}
		for field, value := range patch {
			data[field] = value
		}
		body, err := encodeBody(data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, body)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < mergeRetries; attempt++ {
		err := s.client.Watch(ctx, merge, key)
		switch {
		case err == redis.TxFailedErr:
			continue
		case errors.Is(err, sentinel):
			return err
		case err != nil:
			return fmt.Errorf("%w: %w", sentinel, err)
		}
		s.notify(ctx, path, id)
		return nil
	}
	return fmt.Errorf("%w: document %s/%s kept changing during merge", sentinel, path, id)
}

func (s *Redis) Delete(ctx context.Context, path, id string) error {
	if err := s.client.HDel(ctx, redisKey(path), id).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	s.notify(ctx, path, id)
	return nil
}

func (s *Redis) DeleteAll(ctx context.Context, path string) error {
	if err := s.client.Del(ctx, redisKey(path)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	s.notify(ctx, path, "*")
	return nil
}

func (s *Redis) Observe(ctx context.Context, path string) (<-chan Snapshot, error) {
	pubsub := s.client.Subscribe(ctx, redisChannel(path))
	// Wait for the subscription to be confirmed so no change published
	// after Observe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		snap, err := s.load(ctx, path)
		if err != nil {
			log.Printf("docstore: initial load of %s: %v", path, err)
			return
		}
		if !send(ctx, out, snap) {
			return
		}

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				snap, err := s.load(ctx, path)
				if err != nil {
					log.Printf("docstore: reload of %s: %v", path, err)
					return
				}
				if !send(ctx, out, snap) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Redis) load(ctx context.Context, path string) (Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	snap := make(Snapshot, 0, len(fields))
	for id, raw := range fields {
		doc, err := decodeBody(id, []byte(raw))
		if err != nil {
			log.Printf("docstore: skipping %s/%s: %v", path, id, err)
			continue
		}
		snap = append(snap, doc)
	}
	return snap, nil
}

func (s *Redis) notify(ctx context.Context, path, id string) {
	if err := s.client.Publish(ctx, redisChannel(path), id).Err(); err != nil {
		log.Printf("docstore: notify %s: %v", path, err)
	}
}

func send(ctx context.Context, out chan<- Snapshot, snap Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Redis) Close() error {
	return s.client.Close()
}
