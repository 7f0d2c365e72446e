package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/grantor/pkg/identity"
)

// AuthLevel is how strongly a token was authenticated
type AuthLevel int

const (
	AuthAnonymous AuthLevel = iota
	AuthRemembered
	AuthFully
)

func (l AuthLevel) String() string {
	switch l {
	case AuthRemembered:
		return "remembered"
	case AuthFully:
		return "fully"
	default:
		return "anonymous"
	}
}

// Token is an authenticated principal with its direct roles
type Token interface {
	// User returns the principal, nil for anonymous tokens
	User() any
	RoleNames() []string
}

// Leveled tokens report their authentication level
type Leveled interface {
	AuthLevel() AuthLevel
}

// CacheKeyer tokens provide the key their identities are memoized under
type CacheKeyer interface {
	CacheKey() string
}

// AuthToken is the default Token implementation
type AuthToken struct {
	Principal any
	Roles     []string
	Level     AuthLevel
}

// NewToken creates a fully authenticated token
func NewToken(user any, roles ...string) *AuthToken {
	return &AuthToken{Principal: user, Roles: roles, Level: AuthFully}
}

// NewRememberedToken creates a token authenticated by a remember-me cookie
func NewRememberedToken(user any, roles ...string) *AuthToken {
	return &AuthToken{Principal: user, Roles: roles, Level: AuthRemembered}
}

// NewAnonymousToken creates an anonymous token
func NewAnonymousToken(roles ...string) *AuthToken {
	return &AuthToken{Roles: roles, Level: AuthAnonymous}
}

func (t *AuthToken) User() any            { return t.Principal }
func (t *AuthToken) RoleNames() []string  { return t.Roles }
func (t *AuthToken) AuthLevel() AuthLevel { return t.Level }

// CacheKey identifies the token by level, user and roles
func (t *AuthToken) CacheKey() string {
	user := ""
	if account, ok := t.Principal.(identity.UserAccount); ok {
		user = identity.TypeOf(t.Principal) + ":" + account.UserIdentifier()
	} else if t.Principal != nil {
		user = fmt.Sprintf("%T:%p", t.Principal, t.Principal)
	}
	roles := append([]string(nil), t.Roles...)
	sort.Strings(roles)
	return fmt.Sprintf("%s|%s|%s", t.Level, user, strings.Join(roles, ","))
}
