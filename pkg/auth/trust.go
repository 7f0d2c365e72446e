package auth

// Pseudo roles describing how a token was authenticated
const (
	RoleAuthenticatedFully      = "IS_AUTHENTICATED_FULLY"
	RoleAuthenticatedRemembered = "IS_AUTHENTICATED_REMEMBERED"
	RoleAuthenticatedAnonymous  = "IS_AUTHENTICATED_ANONYMOUSLY"
)

// TrustResolver classifies tokens
type TrustResolver interface {
	IsAnonymous(token Token) bool
	IsRememberMe(token Token) bool
	IsFullyAuthenticated(token Token) bool
}

// DefaultTrustResolver uses the token level when the token reports one. Other
// tokens are anonymous without a user and fully authenticated with one.
type DefaultTrustResolver struct{}

func (DefaultTrustResolver) level(token Token) AuthLevel {
	if token == nil {
		return AuthAnonymous
	}
	if leveled, ok := token.(Leveled); ok {
		return leveled.AuthLevel()
	}
	if token.User() == nil {
		return AuthAnonymous
	}
	return AuthFully
}

func (r DefaultTrustResolver) IsAnonymous(token Token) bool {
	return r.level(token) == AuthAnonymous
}

func (r DefaultTrustResolver) IsRememberMe(token Token) bool {
	return r.level(token) == AuthRemembered
}

func (r DefaultTrustResolver) IsFullyAuthenticated(token Token) bool {
	return r.level(token) == AuthFully
}

// trustRoles returns the cumulative pseudo roles of a token
func trustRoles(resolver TrustResolver, token Token) []string {
	switch {
	case resolver.IsFullyAuthenticated(token):
		return []string{RoleAuthenticatedFully, RoleAuthenticatedRemembered, RoleAuthenticatedAnonymous}
	case resolver.IsRememberMe(token):
		return []string{RoleAuthenticatedRemembered, RoleAuthenticatedAnonymous}
	case resolver.IsAnonymous(token):
		return []string{RoleAuthenticatedAnonymous}
	}
	return nil
}
