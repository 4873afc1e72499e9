package v1

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/road_hazard_engine/internal/config"
	"github.com/sirupsen/logrus"
)

// requestAPIKey читает ключ из X-API-Key или Authorization: Bearer
func requestAPIKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// keyTag - короткий отпечаток ключа для логов; сам ключ не пишется
func keyTag(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

func knownAPIKey(keys []string, key string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// APIKeyAuthMiddleware пропускает запросы с ключом из cfg.APIKeys
func APIKeyAuthMiddleware(cfg *config.Config, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithFields(logrus.Fields{
			"middleware": "api_key",
			"path":       c.FullPath(),
			"client_ip":  c.ClientIP(),
		})

		key := requestAPIKey(c)
		if key == "" {
			log.Warn("Request without API key rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "API key required"})
			return
		}
		if !knownAPIKey(cfg.APIKeys, key) {
			log.WithField("key_sha256", keyTag(key)).Warn("Request with unknown API key rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid API key"})
			return
		}

		c.Next()
	}
}
