package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	fanoutChannel     = "portalchat:presence:fanout"
	statusKey         = "portalchat:presence:status"
	connKeyPrefix     = "portalchat:presence:conns:"
	instanceKeyPrefix = "portalchat:presence:instance:"

	instanceTTL       = 30 * time.Second
	heartbeatInterval = 10 * time.Second
)

// liveCount sums a user's per-instance connection counts, skipping instances
// whose heartbeat key has expired. The calling instance always counts.
const liveCount = `
local function live(key, self)
	local total = 0
	local kv = redis.call('HGETALL', key)
	for i = 1, #kv, 2 do
		local n = tonumber(kv[i + 1])
		if n > 0 and (kv[i] == self or redis.call('EXISTS', '` + instanceKeyPrefix + `' .. kv[i]) == 1) then
			total = total + n
		end
	end
	return total
end
`

// KEYS[1] conn hash, ARGV[1] instance, ARGV[2] delta. Returns the live total
// after applying delta to this instance's count.
var adjustConns = redis.NewScript(liveCount + `
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return live(KEYS[1], ARGV[1])
`)

// KEYS[1] conn hash, ARGV[1] instance.
var countConns = redis.NewScript(liveCount + `
return live(KEYS[1], ARGV[1])
`)

// Redis spans several server instances. Each instance keeps its own sockets
// in an embedded Local. Per-instance connection counts and statuses live in
// Redis, and payloads for sockets held elsewhere travel over one pub/sub
// channel. An instance that stops heartbeating drops out of every count
// within instanceTTL, so a crash cannot pin its users online.
type Redis struct {
	local    *Local
	client   *redis.Client
	instance string
	logger   *zap.Logger
}

var _ Registry = (*Redis)(nil)

// envelope is what crosses the pub/sub channel. UserID targets one user;
// when it is empty the payload is a broadcast minus Exclude.
type envelope struct {
	Origin  string `json:"origin"`
	UserID  string `json:"user_id,omitempty"`
	Exclude string `json:"exclude,omitempty"`
	Payload []byte `json:"payload"`
}

func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{
		local:    NewLocal(logger),
		client:   client,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

// Start subscribes to the fan-out channel and relays remote payloads to
// local sockets until ctx is cancelled. It returns once the subscription is live.
func (r *Redis) Start(ctx context.Context) error {
	if err := r.heartbeat(ctx); err != nil {
		return err
	}
	sub := r.client.Subscribe(ctx, fanoutChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", fanoutChannel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.client.Del(context.WithoutCancel(ctx), r.instanceKey())
				return
			case <-ticker.C:
				if err := r.heartbeat(ctx); err != nil {
					r.logger.Warn("presence heartbeat failed", zap.Error(err))
				}
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.relay(msg.Payload)
			}
		}
	}()

	r.logger.Info("redis presence subscribed", zap.String("instance", r.instance))
	return nil
}

func (r *Redis) instanceKey() string {
	return instanceKeyPrefix + r.instance
}

func (r *Redis) heartbeat(ctx context.Context) error {
	if err := r.client.Set(ctx, r.instanceKey(), 1, instanceTTL).Err(); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

func (r *Redis) relay(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.logger.Warn("bad presence envelope", zap.Error(err))
		return
	}
	if env.Origin == r.instance {
		return
	}
	if env.UserID != "" {
		r.local.sendLocal(env.UserID, env.Payload)
		return
	}
	r.local.broadcastLocal(env.Payload, env.Exclude)
}

func (r *Redis) publish(ctx context.Context, env envelope) error {
	env.Origin = r.instance
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, fanoutChannel, data).Err(); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

func connKey(userID string) string {
	return connKeyPrefix + userID
}

func (r *Redis) Connect(ctx context.Context, conn Conn, userID string) (bool, error) {
	added, _ := r.local.attach(conn, userID)
	if !added {
		return false, nil
	}
	n, err := adjustConns.Run(ctx, r.client, []string{connKey(userID)}, r.instance, 1).Int64()
	if err != nil {
		return false, fmt.Errorf("count connection: %w", err)
	}
	if n != 1 {
		return false, nil
	}
	if err := r.client.HSet(ctx, statusKey, userID, string(models.StatusOnline)).Err(); err != nil {
		return true, fmt.Errorf("store status: %w", err)
	}
	return true, r.announce(ctx, userID, models.StatusOnline, userID)
}

func (r *Redis) Disconnect(ctx context.Context, conn Conn, userID string) (bool, error) {
	removed, _ := r.local.detach(conn, userID)
	if !removed {
		return false, nil
	}
	n, err := adjustConns.Run(ctx, r.client, []string{connKey(userID)}, r.instance, -1).Int64()
	if err != nil {
		return false, fmt.Errorf("uncount connection: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := r.client.HSet(ctx, statusKey, userID, string(models.StatusOffline)).Err(); err != nil {
		return true, fmt.Errorf("store offline: %w", err)
	}
	return true, r.announce(ctx, userID, models.StatusOffline, userID)
}

func (r *Redis) SetStatus(ctx context.Context, userID string, status models.Status) error {
	if err := r.client.HSet(ctx, statusKey, userID, string(status)).Err(); err != nil {
		return fmt.Errorf("store status: %w", err)
	}
	n, err := r.count(ctx, userID)
	if err != nil {
		return err
	}
	return r.announce(ctx, userID, derive(status, n > 0), "")
}

// SendToUser delivers locally and publishes only when a live instance holds
// more of the user's sockets. The total never includes a dead instance.
func (r *Redis) SendToUser(ctx context.Context, userID string, payload []byte) error {
	total, err := r.count(ctx, userID)
	if err != nil {
		return err
	}
	if total == 0 {
		return ErrUserOffline
	}

	local := r.local.localCount(userID)
	delivered := r.local.sendLocal(userID, payload)
	if total > int64(local) {
		return r.publish(ctx, envelope{UserID: userID, Payload: payload})
	}
	if delivered == 0 {
		return ErrUserOffline
	}
	return nil
}

func (r *Redis) Broadcast(ctx context.Context, payload []byte, excludeUserID string) error {
	r.local.broadcastLocal(payload, excludeUserID)
	return r.publish(ctx, envelope{Exclude: excludeUserID, Payload: payload})
}

func (r *Redis) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.count(ctx, userID)
	return n > 0, err
}

func (r *Redis) Status(ctx context.Context, userID string) (models.Status, error) {
	stored, err := r.client.HGet(ctx, statusKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		stored = string(models.StatusOffline)
	} else if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	n, err := r.count(ctx, userID)
	if err != nil {
		return "", err
	}
	return derive(models.Status(stored), n > 0), nil
}

func (r *Redis) Statuses(ctx context.Context) ([]models.UserPresence, error) {
	stored, err := r.client.HGetAll(ctx, statusKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read statuses: %w", err)
	}

	ids := make([]string, 0, len(stored))
	for id := range stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pipe := r.client.Pipeline()
	counts := make([]*redis.Cmd, len(ids))
	for i, id := range ids {
		counts[i] = countConns.Eval(ctx, pipe, []string{connKey(id)}, r.instance)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read connection counts: %w", err)
	}

	out := make([]models.UserPresence, 0, len(ids))
	for i, id := range ids {
		n, err := counts[i].Int64()
		connected := err == nil && n > 0
		out = append(out, models.UserPresence{UserID: id, Status: derive(models.Status(stored[id]), connected)})
	}
	return out, nil
}

// count is the user's connection total across live instances.
func (r *Redis) count(ctx context.Context, userID string) (int64, error) {
	n, err := countConns.Run(ctx, r.client, []string{connKey(userID)}, r.instance).Int64()
	if err != nil {
		return 0, fmt.Errorf("read connection count: %w", err)
	}
	return n, nil
}

func (r *Redis) announce(ctx context.Context, userID string, status models.Status, exclude string) error {
	payload, err := events.Encode(events.NewStatusUpdate(userID, status))
	if err != nil {
		return err
	}
	return r.Broadcast(ctx, payload, exclude)
}
