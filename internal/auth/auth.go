package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type Role string

const (
	RoleCustomer Role = "Customer"
	RoleAdmin    Role = "Admin"
)

// Permission is checked centrally instead of comparing role strings at every
// endpoint.
type Permission int

const (
	PermPlaceOrders Permission = iota
	PermManageOrders
	PermManageCatalog
)

var rolePerms = map[Role]map[Permission]bool{
	RoleCustomer: {
		PermPlaceOrders: true,
	},
	RoleAdmin: {
		PermPlaceOrders:   true,
		PermManageOrders:  true,
		PermManageCatalog: true,
	},
}

// Identity is what the rest of the system knows about the caller. The user
// id always comes from the token subject, never from a request body.
type Identity struct {
	UserID string
	Role   Role
	Token  string // raw bearer credential, forwarded on downstream calls
}

func (id Identity) Can(p Permission) bool {
	return rolePerms[id.Role][p]
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses an HS256 token and extracts the caller identity.
func Verify(secret, token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	role := Role(c.Role)
	if _, known := rolePerms[role]; !known {
		role = RoleCustomer
	}
	return Identity{UserID: c.Subject, Role: role, Token: token}, nil
}

// Sign mints an HS256 token. Issuance belongs to the identity service; this
// exists for service tokens and tests.
func Sign(secret, userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString([]byte(secret))
}
