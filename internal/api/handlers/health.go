package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck reports uptime and whether the match manager loop is answering.
// A stopped or wedged loop turns the check into a 503.
func HealthCheck(source StatusSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		resp := gin.H{
			"service": "duel",
			"version": version,
			"uptime":  time.Since(startTime).Round(time.Second).String(),
		}
		st, err := source.Status(ctx)
		if err != nil {
			resp["status"] = "unavailable"
			resp["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["status"] = "ok"
		resp["connections"] = st.Connections
		resp["active_sessions"] = st.ActiveSessions
		c.JSON(http.StatusOK, resp)
	}
}
