package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionContextKey = "octavia.session"
	sessionIssuer     = "octavia"
)

// SessionConfig 会话 cookie 配置.
type SessionConfig struct {
	Secret []byte
	Cookie string
	Secure bool
	// TTL cookie 有效期，同时作为 JWT 过期时间
	TTL time.Duration
}

// sessionClaims 会话 cookie 中的声明，只携带匿名会话 id.
type sessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionMiddleware 为每个访客签发匿名会话.
// 会话 id 存放在 HS256 签名的 JWT cookie 中，签名无效或过期时重新签发.
func SessionMiddleware(cfg SessionConfig) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)

	keyFunc := func(*jwt.Token) (any, error) { return cfg.Secret, nil }

	return func(c *gin.Context) {
		if raw, err := c.Cookie(cfg.Cookie); err == nil && raw != "" {
			var claims sessionClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err == nil && claims.SID != "" {
				c.Set(sessionContextKey, claims.SID)
				c.Next()

				return
			}
		}

		sid := uuid.NewString()

		token, err := issueSession(cfg, sid, time.Now())
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cannot issue session"})

			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.Cookie, token, int(cfg.TTL.Seconds()), "/", "", cfg.Secure, true)
		c.Set(sessionContextKey, sid)
		c.Next()
	}
}

func issueSession(cfg SessionConfig, sid string, now time.Time) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("session secret is empty")
	}

	claims := sessionClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

// SessionID 返回当前请求的会话 id，未经过 SessionMiddleware 时为空.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
