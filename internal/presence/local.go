package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/observ"
	"go.uber.org/zap"
)

// Local is the single-instance registry. The two maps share one mutex and
// every critical section is short; sends happen outside the lock against a
// snapshot of the connection set.
type Local struct {
	mu     sync.Mutex
	conns  map[string]map[string]Conn
	status map[string]models.Status
	logger *zap.Logger
}

var _ Registry = (*Local)(nil)

func NewLocal(logger *zap.Logger) *Local {
	return &Local{
		conns:  make(map[string]map[string]Conn),
		status: make(map[string]models.Status),
		logger: logger,
	}
}

func (l *Local) Connect(ctx context.Context, conn Conn, userID string) (bool, error) {
	_, first := l.attach(conn, userID)
	if first {
		if err := l.announce(ctx, userID, models.StatusOnline, userID); err != nil {
			return true, err
		}
	}
	return first, nil
}

func (l *Local) Disconnect(ctx context.Context, conn Conn, userID string) (bool, error) {
	_, last := l.detach(conn, userID)
	if last {
		if err := l.announce(ctx, userID, models.StatusOffline, userID); err != nil {
			return true, err
		}
	}
	return last, nil
}

// SetStatus stores status and broadcasts the status others will now see,
// which is offline while the user has no open connection.
func (l *Local) SetStatus(ctx context.Context, userID string, status models.Status) error {
	l.mu.Lock()
	l.status[userID] = status
	derived := l.derivedLocked(userID)
	l.mu.Unlock()
	return l.announce(ctx, userID, derived, "")
}

func (l *Local) SendToUser(_ context.Context, userID string, payload []byte) error {
	if l.sendLocal(userID, payload) == 0 {
		return ErrUserOffline
	}
	return nil
}

func (l *Local) Broadcast(_ context.Context, payload []byte, excludeUserID string) error {
	l.broadcastLocal(payload, excludeUserID)
	return nil
}

func (l *Local) IsOnline(_ context.Context, userID string) (bool, error) {
	return l.localCount(userID) > 0, nil
}

func (l *Local) Status(_ context.Context, userID string) (models.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.derivedLocked(userID), nil
}

func (l *Local) Statuses(_ context.Context) ([]models.UserPresence, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{}, len(l.status)+len(l.conns))
	for id := range l.status {
		seen[id] = struct{}{}
	}
	for id := range l.conns {
		seen[id] = struct{}{}
	}
	out := make([]models.UserPresence, 0, len(seen))
	for id := range seen {
		out = append(out, models.UserPresence{UserID: id, Status: l.derivedLocked(id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (l *Local) derivedLocked(userID string) models.Status {
	stored, ok := l.status[userID]
	if !ok {
		stored = models.StatusOffline
	}
	return derive(stored, len(l.conns[userID]) > 0)
}

// attach registers conn. added is false if conn was already registered;
// first reports whether it is the user's first connection.
func (l *Local) attach(conn Conn, userID string) (added, first bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.conns[userID]
	if !ok {
		set = make(map[string]Conn)
		l.conns[userID] = set
	}
	if _, dup := set[conn.ID()]; dup {
		return false, false
	}
	first = len(set) == 0
	set[conn.ID()] = conn
	if first {
		l.status[userID] = models.StatusOnline
	}
	observ.OpenConnections.Inc()
	return true, first
}

// detach removes conn and reports whether it was the user's last. Detaching
// an unknown connection is a no-op.
func (l *Local) detach(conn Conn, userID string) (removed, last bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.conns[userID]
	if !ok {
		return false, false
	}
	if _, ok := set[conn.ID()]; !ok {
		return false, false
	}
	delete(set, conn.ID())
	observ.OpenConnections.Dec()
	if len(set) > 0 {
		return true, false
	}
	delete(l.conns, userID)
	l.status[userID] = models.StatusOffline
	return true, true
}

func (l *Local) localCount(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns[userID])
}

func (l *Local) snapshot(userID string) []Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Conn, 0, len(l.conns[userID]))
	for _, c := range l.conns[userID] {
		out = append(out, c)
	}
	return out
}

func (l *Local) snapshotExcept(excludeUserID string) []Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Conn, 0, len(l.conns))
	for userID, set := range l.conns {
		if userID == excludeUserID {
			continue
		}
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

// sendLocal returns the number of connections that accepted payload.
func (l *Local) sendLocal(userID string, payload []byte) int {
	return l.deliver(l.snapshot(userID), payload)
}

func (l *Local) broadcastLocal(payload []byte, excludeUserID string) int {
	return l.deliver(l.snapshotExcept(excludeUserID), payload)
}

func (l *Local) deliver(conns []Conn, payload []byte) int {
	n := 0
	for _, c := range conns {
		if err := sendOne(c, payload); err != nil {
			observ.FanoutFailures.Inc()
			l.logger.Warn("send to connection failed",
				zap.String("conn_id", c.ID()),
				zap.Error(err),
			)
			continue
		}
		n++
	}
	return n
}

// sendOne isolates one connection's failure, panics included, from the loop.
func sendOne(c Conn, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return c.Send(payload)
}

func (l *Local) announce(ctx context.Context, userID string, status models.Status, exclude string) error {
	payload, err := events.Encode(events.NewStatusUpdate(userID, status))
	if err != nil {
		return err
	}
	return l.Broadcast(ctx, payload, exclude)
}
