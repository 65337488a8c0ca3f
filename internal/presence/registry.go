// Package presence tracks who is connected and fans payloads out to them.
package presence

import (
	"context"
	"errors"

	"github.com/lalith-99/portalchat/internal/models"
)

// ErrUserOffline is returned by SendToUser when the user has no open connection.
var ErrUserOffline = errors.New("user offline")

// Conn is one open client socket. Send must not block: the gateway queues
// the payload and returns an error if the socket is closed or saturated.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// Registry is the Presence Registry. The chat core depends only on this
// interface; Local serves a single instance and Redis spans several.
type Registry interface {
	// Connect registers conn under userID. first reports whether this was the
	// user's first open connection, in which case "online" was broadcast.
	Connect(ctx context.Context, conn Conn, userID string) (first bool, err error)

	// Disconnect removes conn. last reports whether no connections remain,
	// in which case "offline" was broadcast.
	Disconnect(ctx context.Context, conn Conn, userID string) (last bool, err error)

	// SetStatus stores an explicit status and broadcasts the derived result.
	SetStatus(ctx context.Context, userID string, status models.Status) error

	// SendToUser delivers payload to every connection of userID. It returns
	// ErrUserOffline if none accepted it.
	SendToUser(ctx context.Context, userID string, payload []byte) error

	// Broadcast delivers payload to every connected user except excludeUserID.
	Broadcast(ctx context.Context, payload []byte, excludeUserID string) error

	IsOnline(ctx context.Context, userID string) (bool, error)

	// Status returns the derived status of one user.
	Status(ctx context.Context, userID string) (models.Status, error)

	// Statuses returns the derived status of every user the registry knows.
	Statuses(ctx context.Context) ([]models.UserPresence, error)
}

// derive applies the presence rule: a connected user is online unless they
// chose busy, and a user with no connections is offline.
func derive(stored models.Status, connected bool) models.Status {
	if !connected {
		return models.StatusOffline
	}
	if stored == models.StatusBusy {
		return models.StatusBusy
	}
	return models.StatusOnline
}
