// Package session mirrors live WebSocket connections into Redis so operators
// and other services can see which connections exist, which server holds
// them, and which user each one is bound to. The in-process presence
// directory remains the routing authority.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all connection hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys. Heartbeats refresh it.
	SessionTTL = 1 * time.Hour
)

// Session is the Redis view of one connection.
type Session struct {
	ID         string `redis:"id"`
	UserID     string `redis:"user_id"` // empty until identity is announced
	Server     string `redis:"server"`  // which server instance holds the socket
	RemoteAddr string `redis:"remote_addr"`
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages connection sessions in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Create stores a new unbound session.
func (s *Store) Create(ctx context.Context, connID, remoteAddr string) error {
	key := SessionPrefix + connID
	now := time.Now().Unix()

	session := map[string]interface{}{
		"id":          connID,
		"user_id":     "",
		"server":      s.serverName,
		"remote_addr": remoteAddr,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, session)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session. Returns nil if not found.
func (s *Store) Get(ctx context.Context, connID string) (*Session, error) {
	key := SessionPrefix + connID
	var session Session
	if err := s.client.HGetAll(ctx, key).Scan(&session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, nil
	}
	return &session, nil
}

// BindUser records the user a connection announced and refreshes the TTL.
func (s *Store) BindUser(ctx context.Context, connID, userID string) error {
	key := SessionPrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "user_id", userID, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RefreshTTL extends one session's TTL.
func (s *Store) RefreshTTL(ctx context.Context, connID string) error {
	return s.client.Expire(ctx, SessionPrefix+connID, SessionTTL).Err()
}

// RefreshMany extends the TTL of several sessions in one round trip.
func (s *Store) RefreshMany(ctx context.Context, connIDs []string) error {
	if len(connIDs) == 0 {
		return nil
	}
	now := time.Now().Unix()
	pipe := s.client.Pipeline()
	for _, id := range connIDs {
		key := SessionPrefix + id
		pipe.HSet(ctx, key, "last_active", now)
		pipe.Expire(ctx, key, SessionTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, connID string) error {
	return s.client.Del(ctx, SessionPrefix+connID).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
