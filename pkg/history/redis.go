package history

import (
	"context"
	"os"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type RedisOptions = redis.Options

// RedisSink writes each record as JSON under <namespace>:match:<id> and appends the id to
// <namespace>:history plus one list per player.
type RedisSink struct {
	Namespace string
	Client    *redis.Client
	Log       zerolog.Logger
}

func NewRedisSink(options RedisOptions, namespace string) *RedisSink {
	return &RedisSink{
		Namespace: namespace,
		Client:    redis.NewClient(&options),
		Log:       zerolog.New(os.Stdout),
	}
}

// Ping checks that the server is reachable.
func (r *RedisSink) Ping(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return eris.Wrap(err, "failed to ping redis")
	}
	return nil
}

func (r *RedisSink) PersistMatchResult(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "failed to encode match record")
	}

	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, r.matchKey(record.MatchID), data, 0)
	pipe.LPush(ctx, r.historyKey(), record.MatchID)
	pipe.LPush(ctx, r.playerKey(record.Player1ID), record.MatchID)
	pipe.LPush(ctx, r.playerKey(record.Player2ID), record.MatchID)
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to store match %s", record.MatchID)
	}
	return nil
}

// Get loads a stored record.
func (r *RedisSink) Get(ctx context.Context, matchID string) (Record, error) {
	var record Record
	data, err := r.Client.Get(ctx, r.matchKey(matchID)).Bytes()
	if err != nil {
		return record, eris.Wrapf(err, "failed to load match %s", matchID)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, eris.Wrap(err, "failed to decode match record")
	}
	return record, nil
}

// PlayerMatches returns the ids of a player's matches, newest first.
func (r *RedisSink) PlayerMatches(ctx context.Context, playerID string) ([]string, error) {
	ids, err := r.Client.LRange(ctx, r.playerKey(playerID), 0, -1).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list matches of %s", playerID)
	}
	return ids, nil
}

func (r *RedisSink) Close() error {
	r.Log.Info().Msg("Closing match history connection.")
	if err := r.Client.Close(); err != nil {
		return eris.Wrap(err, "failed to close redis client")
	}
	r.Log.Info().Msg("Successfully closed match history connection.")
	return nil
}

func (r *RedisSink) matchKey(id string) string {
	return r.Namespace + ":match:" + id
}

func (r *RedisSink) historyKey() string {
	return r.Namespace + ":history"
}

func (r *RedisSink) playerKey(id string) string {
	return r.Namespace + ":player:" + id + ":matches"
}
