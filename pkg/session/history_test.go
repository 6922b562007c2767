package session

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistoryStore(t *testing.T) (*HistoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewHistoryStoreWithClient(client, logger, time.Hour), mr
}

func sampleRecord(id string) *InterviewSession {
	return &InterviewSession{
		ID: id,
		Config: InterviewConfig{
			Industry:   "Tech",
			Duration:   10,
			Difficulty: DifficultyStandard,
		},
		Transcript: []Message{
			{Role: "ai", Text: "Tell me about a project you led.", Timestamp: 1000},
			{Role: "user", Text: "I led the search rewrite.", Timestamp: 2000},
		},
		Analyses: []QuestionAnalysis{
			{QuestionID: 1, QuestionText: "Tell me about a project you led.", ContentScore: 7, DeliveryScore: 6},
		},
		StartTime: 1000,
		EndTime:   600000,
	}
}

func TestHistoryStoreSaveAndList(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "user-1", sampleRecord("a")))
	require.NoError(t, store.Save(ctx, "user-1", sampleRecord("b")))

	records, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "a", records[1].ID)
	assert.Equal(t, "Tech", records[0].Config.Industry)
	require.Len(t, records[0].Analyses, 1)
	assert.Equal(t, 7.0, records[0].Analyses[0].ContentScore)
}

func TestHistoryStoreIsolatesUsers(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "user-1", sampleRecord("a")))

	records, err := store.List(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryStoreCapsRetention(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	for i := 0; i < historyCap+10; i++ {
		require.NoError(t, store.Save(ctx, "user-1", sampleRecord(fmt.Sprintf("s-%d", i))))
	}

	records, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, historyCap)

	// The oldest ten fell off; the newest survives at the head.
	assert.Equal(t, fmt.Sprintf("s-%d", historyCap+9), records[0].ID)
	assert.Equal(t, "s-10", records[len(records)-1].ID)
}

func TestHistoryStoreLatest(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	latest, err := store.Latest(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, store.Save(ctx, "user-1", sampleRecord("a")))
	require.NoError(t, store.Save(ctx, "user-1", sampleRecord("b")))

	latest, err = store.Latest(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "b", latest.ID)
}

func TestHistoryStoreSetsTTL(t *testing.T) {
	store, mr := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "user-1", sampleRecord("a")))
	assert.Equal(t, time.Hour, mr.TTL("hireprep:history:user-1"))
}

func TestHistoryStoreSkipsCorruptEntries(t *testing.T) {
	store, mr := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "user-1", sampleRecord("a")))
	mr.Lpush("hireprep:history:user-1", "{not json")

	records, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
}
