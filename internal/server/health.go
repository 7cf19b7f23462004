package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Liveness is the public probe for orchestrators.
func (s *Server) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// IntegrationHealth is the authenticated probe 1C uses to verify its
// credentials and connectivity, including the database path.
func (s *Server) IntegrationHealth(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		AbortWithError(c, &apiError{status: http.StatusServiceUnavailable, Code: "db_unavailable", Detail: "Database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
