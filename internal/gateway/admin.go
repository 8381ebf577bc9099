package gateway

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/observability"
)

// Endpoint paths served by the gateway itself.
const (
	PathHealth = "/health"
	PathReady  = "/ready"
	PathAdmin  = "/admin"
)

// maxConfigurationBytes bounds an uploaded configuration document.
const maxConfigurationBytes = 1 << 20

const redacted = "REDACTED"

const bearerPrefix = "bearer "

// adminSettings returns the admin API settings of cfg. They are bound when
// the gateway is created.
func adminSettings(cfg *config.GatewayConfig) config.AdminConfig {
	if cfg.Spec.Admin == nil {
		return config.AdminConfig{}
	}
	return *cfg.Spec.Admin
}

// adminAuth rejects requests without the bearer token. An empty token
// admits every request.
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

func bearerToken(auth string) (string, bool) {
	if len(auth) <= len(bearerPrefix) || !strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return auth[len(bearerPrefix):], true
}

// getConfiguration returns the active configuration with secrets redacted.
func (g *Gateway) getConfiguration(c *gin.Context) {
	c.JSON(http.StatusOK, redactConfig(g.Config()))
}

// postConfiguration parses the request body as a configuration document
// and reloads the gateway with it.
func (g *Gateway) postConfiguration(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxConfigurationBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid configuration",
			"message": err.Error(),
		})
		return
	}

	cfg, err := config.ParseConfig(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid configuration",
			"message": err.Error(),
		})
		return
	}

	if err := g.Reload(cfg); err != nil {
		g.logger.Warn("configuration update rejected",
			observability.Error(err),
		)
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":   "invalid configuration",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "reloaded",
		"routes": len(cfg.Spec.Routes),
	})
}

// redactConfig returns a copy of cfg safe to expose over the admin API.
func redactConfig(cfg *config.GatewayConfig) *config.GatewayConfig {
	out := *cfg
	global := cfg.Spec.Global
	if sd := global.ServiceDiscovery; sd != nil && sd.Token != "" {
		copied := *sd
		copied.Token = redacted
		global.ServiceDiscovery = &copied
	}
	if ss := global.SessionStore; ss != nil && ss.Password != "" {
		copied := *ss
		copied.Password = redacted
		global.SessionStore = &copied
	}
	out.Spec.Global = global
	if admin := cfg.Spec.Admin; admin != nil && admin.Token != "" {
		copied := *admin
		copied.Token = redacted
		out.Spec.Admin = &copied
	}
	return &out
}
