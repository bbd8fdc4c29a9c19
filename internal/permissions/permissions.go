// Package permissions evaluates role bitmasks. Grants are re-read from the
// store on every call: a role change must take effect on the very next
// operation of an already-open connection.
package permissions

import (
	"context"

	"guildgate-backend/internal/models"
)

type Permission uint64

const (
	CreateInvite Permission = 1 << iota
	KickMembers
	BanMembers
	Administrator
	ManageChannels
	ManageGuild
	AddReactions
	ViewChannel
	SendMessages
	ManageMessages
	Connect
	Speak
	ManageRoles
)

// Default is the bitmask given to a guild's everyone-role at creation.
func Default() Permission {
	return CreateInvite | AddReactions | ViewChannel | SendMessages | Connect | Speak
}

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

var flagNames = map[Permission]string{
	CreateInvite:   "CREATE_INVITE",
	KickMembers:    "KICK_MEMBERS",
	BanMembers:     "BAN_MEMBERS",
	Administrator:  "ADMINISTRATOR",
	ManageChannels: "MANAGE_CHANNELS",
	ManageGuild:    "MANAGE_GUILD",
	AddReactions:   "ADD_REACTIONS",
	ViewChannel:    "VIEW_CHANNEL",
	SendMessages:   "SEND_MESSAGES",
	ManageMessages: "MANAGE_MESSAGES",
	Connect:        "CONNECT",
	Speak:          "SPEAK",
	ManageRoles:    "MANAGE_ROLES",
}

func (p Permission) String() string {
	if name, ok := flagNames[p]; ok {
		return name
	}
	names := ""
	for flag, name := range flagNames {
		if p.Has(flag) {
			if names != "" {
				names += "|"
			}
			names += name
		}
	}
	if names == "" {
		return "NONE"
	}
	return names
}

// Directory is the slice of the durable store the engine reads.
type Directory interface {
	GuildOwnerID(ctx context.Context, guildID int64) (int64, error)
	MemberRoles(ctx context.Context, guildID int64, accountID int64) (roles []models.Role, isMember bool, err error)
	DefaultRole(ctx context.Context, guildID int64) (models.Role, error)
}

type Engine struct {
	dir Directory
}

func NewEngine(dir Directory) *Engine {
	return &Engine{dir: dir}
}

// Authorize reports whether accountID holds required in guildID. The guild
// owner always passes. A member with zero explicit roles falls back to the
// default role's mask. Any assigned role granting the bit, or carrying
// Administrator, grants access. Unknown guild or non-member is a plain deny.
func (e *Engine) Authorize(ctx context.Context, accountID int64, guildID int64, required Permission) (bool, error) {
	ownerID, err := e.dir.GuildOwnerID(ctx, guildID)
	if err != nil {
		return false, err
	}
	if ownerID == 0 {
		return false, nil
	}
	if ownerID == accountID {
		return true, nil
	}

	roles, isMember, err := e.dir.MemberRoles(ctx, guildID, accountID)
	if err != nil {
		return false, err
	}
	if !isMember {
		return false, nil
	}

	if len(roles) == 0 {
		defaultRole, err := e.dir.DefaultRole(ctx, guildID)
		if err != nil {
			return false, err
		}
		roles = []models.Role{defaultRole}
	}

	return Evaluate(roles, required), nil
}

// Evaluate is the pure core of Authorize: any role granting the bit, or the
// Administrator wildcard, allows the operation.
func Evaluate(roles []models.Role, required Permission) bool {
	for _, role := range roles {
		mask := Permission(role.Permissions)
		if mask.Has(Administrator) || mask.Has(required) {
			return true
		}
	}
	return false
}

// CanModerate implements higher-role protection for kick/ban style actions:
// the actor needs a strictly greater maximum role position than the target,
// unless the actor owns the guild. The owner can never be moderated.
func (e *Engine) CanModerate(ctx context.Context, actorID int64, targetID int64, guildID int64) (bool, error) {
	ownerID, err := e.dir.GuildOwnerID(ctx, guildID)
	if err != nil {
		return false, err
	}
	if ownerID == 0 || targetID == ownerID {
		return false, nil
	}
	if actorID == ownerID {
		return true, nil
	}

	actorRoles, actorIsMember, err := e.dir.MemberRoles(ctx, guildID, actorID)
	if err != nil {
		return false, err
	}
	if !actorIsMember {
		return false, nil
	}

	targetRoles, _, err := e.dir.MemberRoles(ctx, guildID, targetID)
	if err != nil {
		return false, err
	}

	return maxPosition(actorRoles) > maxPosition(targetRoles), nil
}

func maxPosition(roles []models.Role) int {
	max := 0
	for _, role := range roles {
		if role.Position > max {
			max = role.Position
		}
	}
	return max
}
