package auth

// Floor roles, ordered by privilege.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

var roleLevels = map[string]int{
	RoleOperator:   1,
	RoleSupervisor: 2,
	RoleAdmin:      3,
}

// ValidRole reports whether the role is one the floor recognizes.
func ValidRole(role string) bool {
	_, ok := roleLevels[role]
	return ok
}

// RoleAtLeast reports whether role carries at least the privilege of required.
func RoleAtLeast(role, required string) bool {
	return roleLevels[role] >= roleLevels[required] && roleLevels[role] > 0
}

// Broadcast channels clients can subscribe to.
const (
	ChannelGeneral       = "general"
	ChannelNotifications = "notifications"
	ChannelProduction    = "production"
	ChannelMachines      = "machines"
	ChannelAlerts        = "alerts"
	ChannelAnalytics     = "analytics"
	ChannelAdmin         = "admin"
)

// ChannelACL maps a role to the channels it may subscribe to.
type ChannelACL map[string][]string

// DefaultChannelACL returns the compiled-in role allow-lists. Deployments may
// override them through the hub section of the config file.
func DefaultChannelACL() ChannelACL {
	operator := []string{ChannelGeneral, ChannelNotifications, ChannelProduction, ChannelMachines}
	supervisor := append(append([]string{}, operator...), ChannelAlerts, ChannelAnalytics)
	admin := append(append([]string{}, supervisor...), ChannelAdmin)
	return ChannelACL{
		RoleOperator:   operator,
		RoleSupervisor: supervisor,
		RoleAdmin:      admin,
	}
}

// NarrowedChannelACL applies configured overrides on top of the compiled-in
// allow-lists. An override can only remove channels from its role: channels
// the defaults do not grant are dropped, and roles absent from the override
// keep their full default set. A nil override yields the defaults.
func NarrowedChannelACL(overrides map[string][]string) ChannelACL {
	acl := DefaultChannelACL()
	for role, channels := range overrides {
		allowed := acl[role]
		kept := make([]string, 0, len(channels))
		for _, c := range channels {
			for _, a := range allowed {
				if c == a {
					kept = append(kept, c)
					break
				}
			}
		}
		acl[role] = kept
	}
	return acl
}

// Allowed reports whether the role may subscribe to the channel.
func (a ChannelACL) Allowed(role, channel string) bool {
	for _, c := range a[role] {
		if c == channel {
			return true
		}
	}
	return false
}

// Channels returns the allow-list for a role.
func (a ChannelACL) Channels(role string) []string {
	return a[role]
}
