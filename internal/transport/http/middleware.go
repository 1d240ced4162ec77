package http

import (
	"strings"

	"edugame-service/internal/domain"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// TokenParser resolves a session token into the identity it was issued to.
type TokenParser interface {
	ParseToken(token string) (domain.Identity, error)
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the token query
// parameter browsers use for websocket upgrades.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// RequireIdentity rejects requests without a valid token. With roles given, the
// identity must hold one of them.
func (s *Server) RequireIdentity(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			s.fail(c, domain.ErrUnauthorized)
			return
		}
		identity, err := s.tokens.ParseToken(token)
		if err != nil {
			s.fail(c, domain.ErrUnauthorized)
			return
		}
		if len(roles) > 0 && !hasRole(identity.Role, roles) {
			s.fail(c, domain.ErrForbidden)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// OptionalIdentity attaches the identity when a valid token is present but never blocks.
func (s *Server) OptionalIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if identity, err := s.tokens.ParseToken(token); err == nil {
				c.Set(identityKey, identity)
			}
		}
		c.Next()
	}
}

// identityFrom returns the resolved caller, or nil for an anonymous request.
func identityFrom(c *gin.Context) *domain.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, ok := v.(domain.Identity)
	if !ok {
		return nil
	}
	return &identity
}

func hasRole(role domain.Role, roles []domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
