package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/logging"
)

// NewRouter mounts every route of the intake API.
func NewRouter(h *Handler, origins []string, log logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log.With("module", "http")))

	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", common.SessionTokenHeaderName},
			ExposeHeaders:    []string{"Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.POST("/uploads/sessions", h.CreateSession)
		api.GET("/uploads", h.List)
		api.POST("/forms/:formType", h.Submit)
		api.GET("/forms/:formType/:id", h.Confirmation)
		api.POST("/pricing/quote", h.Quote)
	}

	session := r.Group("/api")
	session.Use(SessionAuth(h.secret))
	{
		session.POST("/uploads", h.Upload)
		session.DELETE("/uploads", h.Delete)
		session.POST("/uploads/delete", h.DeleteMany)
		session.POST("/rpc/delete_uploaded_file", h.DeleteUploadedFile)
	}

	return r
}
