package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/logging"
)

// Compile-time check to ensure Redis implements DocumentStore
var _ interfaces.DocumentStore = (*Redis)(nil)

// Redis stores one string key per leaf, holding the leaf's JSON encoding.
// Keys are "<prefix>doc:<path>"; change notifications are published on
// "<prefix>changes".
type Redis struct {
	client  *redis.Client
	prefix  string
	channel string
	subs    *fanout

	mu     sync.Mutex
	pubsub *redis.PubSub
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedis connects to Redis. The connection is verified lazily; call Ping
// to fail fast.
func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisWithClient(client, opts.KeyPrefix)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client:  client,
		prefix:  prefix,
		channel: prefix + "changes",
		subs:    newFanout(),
	}
}

func (r *Redis) key(path string) string {
	return r.prefix + "doc:" + path
}

func (r *Redis) Read(ctx context.Context, path string) (any, bool, error) {
	cp, err := CleanPath(path)
	if err != nil {
		return nil, false, err
	}
	return r.read(ctx, cp)
}

func (r *Redis) read(ctx context.Context, path string) (any, bool, error) {
	if path != "" {
		raw, err := r.client.Get(ctx, r.key(path)).Result()
		switch {
		case err == nil:
			v, err := decodeLeaf(raw)
			if err != nil {
				return nil, false, fmt.Errorf("read %q: %w", path, err)
			}
			return v, true, nil
		case !errors.Is(err, redis.Nil):
			return nil, false, fmt.Errorf("read %q: %w", path, err)
		}
	}

	keys, err := r.descendantKeys(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if len(keys) == 0 {
		return nil, false, nil
	}

	raws, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", path, err)
	}
	leaves := make(map[string]any, len(keys))
	for i, k := range keys {
		s, ok := raws[i].(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		v, err := decodeLeaf(s)
		if err != nil {
			return nil, false, fmt.Errorf("read %q: %w", k, err)
		}
		leaves[strings.TrimPrefix(k, r.prefix+"doc:")] = v
	}
	v, ok := Assemble(path, leaves)
	return v, ok, nil
}

// descendantKeys lists the leaf keys strictly below path.
func (r *Redis) descendantKeys(ctx context.Context, path string) ([]string, error) {
	pattern := globEscape(r.prefix+"doc:") + "*"
	if path != "" {
		pattern = globEscape(r.key(path)) + "/*"
	}

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", pattern, err)
	}
	return keys, nil
}

func (r *Redis) Write(ctx context.Context, path string, value any) error {
	return r.Update(ctx, map[string]any{path: value})
}

// Update replaces every path in one MULTI/EXEC transaction and publishes a
// single change message.
func (r *Redis) Update(ctx context.Context, values map[string]any) error {
	paths, clean, err := prepareUpdate(values)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	var stale []string
	sets := make(map[string]string)
	for _, p := range paths {
		below, err := r.descendantKeys(ctx, p)
		if err != nil {
			return err
		}
		stale = append(stale, below...)
		stale = append(stale, r.key(p))
		for _, a := range Ancestors(p) {
			stale = append(stale, r.key(a))
		}
		for leaf, v := range Flatten(p, clean[p]) {
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %q: %w", leaf, err)
			}
			sets[r.key(leaf)] = string(b)
		}
	}

	msg, err := json.Marshal(changeMessage{Paths: paths})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, stale...)
		for k, v := range sets {
			pipe.Set(ctx, k, v, 0)
		}
		pipe.Publish(ctx, r.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update %v: %w", paths, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, path string) error {
	return r.Update(ctx, map[string]any{path: nil})
}

// Subscribe registers fn. The first subscription opens the shared pub/sub
// connection.
func (r *Redis) Subscribe(ctx context.Context, path string, fn interfaces.ChangeFunc) (func(), error) {
	cp, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %q: nil callback", cp)
	}
	if err := r.listen(ctx); err != nil {
		return nil, err
	}
	return r.subs.add(ctx, cp, fn), nil
}

func (r *Redis) listen(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return nil
	}

	ps := r.client.Subscribe(context.Background(), r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.pubsub = ps

	go func() {
		for m := range ps.Channel() {
			var msg changeMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logging.Warn("Ignoring malformed change message", "channel", r.channel, "error", err)
				continue
			}
			r.subs.notify(msg.Paths, func(path string) (any, bool, error) {
				readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				v, ok, err := r.read(readCtx, path)
				if err != nil {
					logging.Warn("Failed to read changed path", "path", path, "error", err)
				}
				return v, ok, err
			})
		}
	}()
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	ps := r.pubsub
	r.pubsub = nil
	r.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	}
	return r.client.Close()
}

func decodeLeaf(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode leaf: %w", err)
	}
	return v, nil
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
