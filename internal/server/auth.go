package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"econ-empire/internal/game"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "identity"

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens whose subject is the numeric
// user id and whose role claim is operator or player.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Verify(raw string) (game.Identity, error) {
	if len(a.secret) == 0 {
		return game.Identity{}, errors.New("token verification is not configured")
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return game.Identity{}, err
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return game.Identity{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	role := game.Role(claims.Role)
	if role != game.RoleOperator && role != game.RolePlayer {
		return game.Identity{}, fmt.Errorf("invalid role %q", claims.Role)
	}
	return game.Identity{UserID: uint(userID), Role: role}, nil
}

// Issue signs a token for id. Credential issuance lives outside this
// service; Issue exists for tooling and tests.
func (a *Authenticator) Issue(id game.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (s *Server) requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.Request)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": game.CodeOf(game.ErrUnauthenticated)})
			return
		}
		id, err := s.auth.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": game.CodeOf(game.ErrUnauthenticated)})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) game.Identity {
	if value, ok := c.Get(identityKey); ok {
		if id, ok := value.(game.Identity); ok {
			return id
		}
	}
	return game.Identity{}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
