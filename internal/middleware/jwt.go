package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Roles carried in the role claim.
const (
	RoleEmployee = "employee"
	RoleEmployer = "employer"
	RoleAdmin    = "admin"
)

// Claims is what a verified token puts on the echo context.
type Claims struct {
	UserID     string
	Role       string
	EmployerID string
}

// IssueToken signs an HS256 token with the user_id, role and employer_id
// claims read by JWTMiddleware.
func IssueToken(secret string, c Claims, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": c.UserID,
		"role":    c.Role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if c.EmployerID != "" {
		claims["employer_id"] = c.EmployerID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenStr and returns its claims.
func ParseToken(secret, tokenStr string) (Claims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("invalid token claims")
	}
	c := Claims{}
	c.UserID, _ = mc["user_id"].(string)
	c.Role, _ = mc["role"].(string)
	c.EmployerID, _ = mc["employer_id"].(string)
	if c.UserID == "" || c.Role == "" {
		return Claims{}, errors.New("invalid token claims")
	}
	return c, nil
}

// JWTMiddleware verifies the bearer token and sets user_id, role and
// employer_id on the context.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing or malformed token"})
			}
			claims, err := ParseToken(secret, tokenStr)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}
			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)
			c.Set("employer_id", claims.EmployerID)
			return next(c)
		}
	}
}
