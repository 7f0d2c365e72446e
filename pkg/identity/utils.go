package identity

// Merge appends the identities of add missing from sids. The result never
// holds two identities with the same kind, type and identifier.
func Merge(sids, add []SecurityIdentity) []SecurityIdentity {
	seen := make(map[SecurityIdentity]struct{}, len(sids)+len(add))
	out := make([]SecurityIdentity, 0, len(sids)+len(add))
	for _, list := range [][]SecurityIdentity{sids, add} {
		for _, sid := range list {
			if _, ok := seen[sid]; ok {
				continue
			}
			seen[sid] = struct{}{}
			out = append(out, sid)
		}
	}
	return out
}

// Contains reports whether sids holds sid
func Contains(sids []SecurityIdentity, sid SecurityIdentity) bool {
	for _, s := range sids {
		if s.Equals(sid) {
			return true
		}
	}
	return false
}

// FilterRoles returns the identifiers of the role identities, deduplicated and
// in their original order.
func FilterRoles(sids []SecurityIdentity) []string {
	seen := make(map[string]struct{}, len(sids))
	roles := make([]string, 0, len(sids))
	for _, sid := range sids {
		if !sid.IsRole() {
			continue
		}
		if _, ok := seen[sid.Identifier]; ok {
			continue
		}
		seen[sid.Identifier] = struct{}{}
		roles = append(roles, sid.Identifier)
	}
	return roles
}

// RoleIdentities turns role names into role identities, skipping empty names
func RoleIdentities(roles []string) []SecurityIdentity {
	sids := make([]SecurityIdentity, 0, len(roles))
	for _, role := range roles {
		sid, err := NewRoleIdentity(RoleType, role)
		if err != nil {
			continue
		}
		sids = append(sids, sid)
	}
	return sids
}

// Remove returns sids without the identities present in drop
func Remove(sids, drop []SecurityIdentity) []SecurityIdentity {
	out := make([]SecurityIdentity, 0, len(sids))
	for _, sid := range sids {
		if !Contains(drop, sid) {
			out = append(out, sid)
		}
	}
	return out
}
