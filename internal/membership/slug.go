// Package membership derives channel membership from the HR directory.
//
// Channels are not stored. Every user belongs to "general", to the
// department channel named after their department, and to the team channel
// named after their team. The same Slug function builds channel ids and
// resolves them, so any name the directory holds is reachable.
package membership

import (
	"strings"
)

const (
	GeneralChannel   = "general"
	DepartmentPrefix = "dept-"
	TeamPrefix       = "team-"
)

// Slug lowercases name and turns spaces and slashes into hyphens.
func Slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '-'
		}
		return r
	}, name)
}

// DepartmentChannel returns the channel id for a department, or "" if
// department is blank.
func DepartmentChannel(department string) string {
	if s := Slug(department); s != "" {
		return DepartmentPrefix + s
	}
	return ""
}

// TeamChannel returns the channel id for a team, or "" if team is blank.
func TeamChannel(team string) string {
	if s := Slug(team); s != "" {
		return TeamPrefix + s
	}
	return ""
}

// IsChannelID reports whether id names a channel rather than a user.
func IsChannelID(id string) bool {
	return id == GeneralChannel ||
		strings.HasPrefix(id, DepartmentPrefix) ||
		strings.HasPrefix(id, TeamPrefix)
}
