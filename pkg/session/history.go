package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// historyCap bounds the per-user retention. Older interviews fall off the
// end of the list.
const historyCap = 50

// HistoryStore keeps completed interview records per user in Redis, newest
// first.
type HistoryStore struct {
	client    redis.UniversalClient
	logger    *logrus.Logger
	keyPrefix string
	ttl       time.Duration
}

// HistoryConfig holds the Redis connection settings for the history store.
type HistoryConfig struct {
	Address  string
	Password string
	Database int
	TTL      time.Duration
}

// NewHistoryStore connects to Redis and verifies the connection.
func NewHistoryStore(cfg HistoryConfig, logger *logrus.Logger) (*HistoryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &HistoryStore{
		client:    client,
		logger:    logger,
		keyPrefix: "hireprep:history:",
		ttl:       cfg.TTL,
	}

	logger.WithFields(logrus.Fields{
		"address": cfg.Address,
		"ttl":     cfg.TTL,
	}).Info("Interview history store initialized")

	return store, nil
}

// NewHistoryStoreWithClient wraps an existing client, for tests.
func NewHistoryStoreWithClient(client redis.UniversalClient, logger *logrus.Logger, ttl time.Duration) *HistoryStore {
	return &HistoryStore{
		client:    client,
		logger:    logger,
		keyPrefix: "hireprep:history:",
		ttl:       ttl,
	}
}

// Save prepends a completed interview to the user's history and trims the
// list to the retention cap.
func (h *HistoryStore) Save(ctx context.Context, userID string, record *InterviewSession) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal interview record: %w", err)
	}

	key := h.userKey(userID)
	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, historyCap-1)
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store interview record: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": record.ID,
	}).Debug("Interview record stored")

	return nil
}

// List returns the user's interview history, newest first.
func (h *HistoryStore) List(ctx context.Context, userID string) ([]*InterviewSession, error) {
	values, err := h.client.LRange(ctx, h.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read interview history: %w", err)
	}

	records := make([]*InterviewSession, 0, len(values))
	for _, v := range values {
		var record InterviewSession
		if err := json.Unmarshal([]byte(v), &record); err != nil {
			h.logger.WithError(err).WithField("user_id", userID).Warn("Skipping corrupt history entry")
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// Latest returns the most recent interview or nil when the history is empty.
func (h *HistoryStore) Latest(ctx context.Context, userID string) (*InterviewSession, error) {
	value, err := h.client.LIndex(ctx, h.userKey(userID), 0).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest interview: %w", err)
	}

	var record InterviewSession
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("corrupt latest history entry: %w", err)
	}
	return &record, nil
}

// Close releases the Redis connection.
func (h *HistoryStore) Close() error {
	return h.client.Close()
}

func (h *HistoryStore) userKey(userID string) string {
	return h.keyPrefix + userID
}
