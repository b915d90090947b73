package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"examprephub/internal/api/handlers"
	"examprephub/internal/logger"
)

// learnerSessionKey holds the workspace owner id in the session.
const learnerSessionKey = "learner"

// CORSMiddleware allows the study front-end origins, with credentials so the
// session cookie is sent.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		// Trim trailing slash if present; browsers never send one.
		allowed = append(allowed, strings.TrimSuffix(o, "/"))
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowed,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "accept", "origin", "Cache-Control", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// LearnerSession makes sure every request belongs to a learner. There are no
// accounts: a new visitor gets a random id stored in the session cookie, and
// that id selects their workspace.
func LearnerSession(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		owner, _ := session.Get(learnerSessionKey).(string)
		if _, err := uuid.Parse(owner); err != nil {
			owner = uuid.NewString()
			session.Set(learnerSessionKey, owner)
			if err := session.Save(); err != nil {
				log.Error("Failed to save learner session", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not start a session"})
				return
			}
			log.Debug("Started learner session", "owner", owner)
		}
		c.Set(handlers.OwnerKey, owner)
		c.Next()
	}
}

// RequestLogger logs one line per request, at a level matching the status.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if owner := c.GetString(handlers.OwnerKey); owner != "" {
			fields = append(fields, "owner", owner)
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
