package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownChannel is returned by Lookup for an id no directory entry maps to.
var ErrUnknownChannel = errors.New("unknown channel")

type cached struct {
	members []string
	expires time.Time
}

// Resolver is the Channel Membership Resolver.
//
// Members is logically a pure function of the directory. With a positive
// ttl, results are kept per channel id for that long, and concurrent
// lookups of the same channel share one directory read.
type Resolver struct {
	dir    repository.DirectoryRepository
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cached
	group singleflight.Group
}

func NewResolver(dir repository.DirectoryRepository, ttl time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cached),
	}
}

// Members returns the user ids of a channel. An unrecognized id yields an
// empty set, never an error.
func (r *Resolver) Members(ctx context.Context, channelID string) ([]string, error) {
	if !IsChannelID(channelID) {
		return []string{}, nil
	}
	if members, ok := r.fromCache(channelID); ok {
		return members, nil
	}

	v, err, _ := r.group.Do(channelID, func() (any, error) {
		employees, err := r.dir.ListEmployees(ctx)
		if err != nil {
			return nil, fmt.Errorf("list employees: %w", err)
		}
		members := resolve(channelID, employees)
		r.store(channelID, members)
		r.logger.Debug("resolved channel members",
			zap.String("channel_id", channelID),
			zap.Int("members", len(members)),
		)
		return members, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

func resolve(channelID string, employees []models.Employee) []string {
	members := make([]string, 0)
	for _, e := range employees {
		if inChannel(channelID, e) {
			members = append(members, e.ID)
		}
	}
	return members
}

func inChannel(channelID string, e models.Employee) bool {
	switch {
	case channelID == GeneralChannel:
		return true
	case strings.HasPrefix(channelID, DepartmentPrefix):
		return DepartmentChannel(e.Department) == channelID
	case strings.HasPrefix(channelID, TeamPrefix):
		return TeamChannel(e.Team) == channelID
	}
	return false
}

func (r *Resolver) fromCache(channelID string) ([]string, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[channelID]
	if !ok || r.now().After(c.expires) {
		return nil, false
	}
	return append([]string(nil), c.members...), true
}

func (r *Resolver) store(channelID string, members []string) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[channelID] = cached{members: members, expires: r.now().Add(r.ttl)}
}

// Invalidate drops every cached membership.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cached)
}

// IsMember reports whether userID currently belongs to channelID.
func (r *Resolver) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	members, err := r.Members(ctx, channelID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

// ChannelsFor returns the channel ids a user belongs to. A user missing from
// the directory belongs to none.
func (r *Resolver) ChannelsFor(ctx context.Context, userID string) ([]string, error) {
	e, err := r.dir.GetEmployee(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	if e == nil {
		return []string{}, nil
	}
	channels := []string{GeneralChannel}
	if dept := DepartmentChannel(e.Department); dept != "" {
		channels = append(channels, dept)
	}
	if team := TeamChannel(e.Team); team != "" {
		channels = append(channels, team)
	}
	return channels, nil
}

// Catalog lists every channel the directory currently implies, general
// first, then departments, then teams, each group sorted by id.
func (r *Resolver) Catalog(ctx context.Context) ([]models.Channel, error) {
	employees, err := r.dir.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	general := models.Channel{
		ID:          GeneralChannel,
		Type:        models.ChannelPublic,
		Description: "General company announcements and discussions",
		MemberCount: len(employees),
	}
	depts := make(map[string]*models.Channel)
	teams := make(map[string]*models.Channel)

	for _, e := range employees {
		if id := DepartmentChannel(e.Department); id != "" {
			c, ok := depts[id]
			if !ok {
				c = &models.Channel{
					ID:          id,
					Type:        models.ChannelDepartment,
					Department:  e.Department,
					Description: e.Department + " department discussions",
				}
				depts[id] = c
			}
			c.MemberCount++
		}
		if id := TeamChannel(e.Team); id != "" {
			c, ok := teams[id]
			if !ok {
				c = &models.Channel{
					ID:          id,
					Type:        models.ChannelTeam,
					Department:  e.Department,
					Team:        e.Team,
					Description: e.Team + " team channel",
				}
				teams[id] = c
			}
			c.MemberCount++
		}
	}

	out := []models.Channel{general}
	out = append(out, sortedChannels(depts)...)
	out = append(out, sortedChannels(teams)...)
	return out, nil
}

func sortedChannels(m map[string]*models.Channel) []models.Channel {
	out := make([]models.Channel, 0, len(m))
	for _, c := range m {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns one catalog entry.
func (r *Resolver) Lookup(ctx context.Context, channelID string) (*models.Channel, error) {
	if !IsChannelID(channelID) {
		return nil, ErrUnknownChannel
	}
	catalog, err := r.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	for i := range catalog {
		if catalog[i].ID == channelID {
			return &catalog[i], nil
		}
	}
	return nil, ErrUnknownChannel
}
