package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// PrincipalKey is the gin context key holding the models.Principal.
const PrincipalKey = "principal"

var errNoToken = errors.New("missing bearer token")

// Auth validates the access token and resolves it to a principal once per
// request. Tokens are read from the Authorization header, falling back to
// the "token" cookie set by the storefront.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"kind": "unauthorized", "message": "Unauthorized"}})
			return
		}
		claims, err := ParseToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"kind": "unauthorized", "message": "Invalid or expired token"}})
			return
		}
		p, err := PrincipalFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"kind": "unauthorized", "message": err.Error()}})
			return
		}
		c.Set(PrincipalKey, p)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && strings.TrimSpace(tok) != "" {
			return strings.TrimSpace(tok), nil
		}
		return "", errNoToken
	}
	if v, err := c.Cookie("token"); err == nil && v != "" {
		return v, nil
	}
	return "", errNoToken
}

// ParseToken verifies an HMAC-signed JWT and returns its claims.
func ParseToken(tokenStr string, secret []byte) (jwt.MapClaims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("JWT secret not configured")
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// PrincipalFromClaims maps token claims onto one of the principal variants.
// Unknown roles are rejected rather than downgraded.
func PrincipalFromClaims(claims jwt.MapClaims) (models.Principal, error) {
	raw, _ := claims["sub"].(string)
	if raw == "" {
		raw, _ = claims["user_id"].(string)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("token has no valid subject")
	}

	role, _ := claims["role"].(string)
	switch models.Role(role) {
	case models.RoleCustomer, "":
		return models.Customer{ID: id}, nil
	case models.RoleShopOwner:
		owner := models.ShopOwner{ID: id}
		if s, ok := claims["shop_id"].(string); ok && s != "" {
			shopID, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("token has an invalid shop_id")
			}
			owner.ShopID = shopID
		}
		return owner, nil
	case models.RoleDeliveryPerson:
		email, _ := claims["email"].(string)
		return models.DeliveryPerson{ID: id, Email: email}, nil
	case models.RoleAdmin:
		return models.Admin{ID: id}, nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}

// GetPrincipal returns the principal stored by Auth.
func GetPrincipal(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}
