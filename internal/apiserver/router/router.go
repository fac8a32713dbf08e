// Package router wires the ingest API routes onto a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/internal/apiserver/handler"
	"github.com/kart-io/chunkflow/pkg/middleware"
)

// Handlers bundles the route handlers.
type Handlers struct {
	Chunk     *handler.ChunkHandler
	Tag       *handler.TagHandler
	Component *handler.ComponentHandler
	Document  *handler.DocumentHandler
	Health    *handler.HealthHandler
}

// Limits caps request bodies.
type Limits struct {
	// Body applies to JSON endpoints.
	Body int64
	// Upload applies to POST /upload. It must leave room for the
	// multipart framing around the file.
	Upload int64
}

// uploadOverhead is added to the upload limit for multipart headers and
// form fields.
const uploadOverhead = 1 << 20

// probePaths are neither traced nor logged.
var probePaths = []string{"/healthz", "/readyz"}

// New builds the engine with the middleware chain and every route.
func New(h *Handlers, limits Limits) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Tracing(middleware.WithTracingSkipPaths(probePaths...)),
		middleware.Logger(middleware.WithLoggerSkipPaths(probePaths...)),
	)
	r.MaxMultipartMemory = limits.Upload

	r.GET("/healthz", h.Health.Liveness)
	r.GET("/readyz", h.Health.Readiness)

	v1 := r.Group("/api/v1")
	v1.POST("/upload", middleware.BodyLimit(limits.Upload+uploadOverhead), h.Document.Upload)

	api := v1.Group("", middleware.BodyLimit(limits.Body))
	{
		documents := api.Group("/documents")
		documents.GET("", h.Document.List)
		documents.GET("/:id", h.Document.Get)
		documents.DELETE("/:id", h.Document.Delete)

		chunks := api.Group("/chunks")
		chunks.POST("", h.Chunk.Create)
		chunks.PUT("", h.Chunk.Update)
		chunks.GET("/document/:documentId", h.Chunk.ListByDocument)
		chunks.DELETE("/document/:documentId", h.Chunk.DeleteByDocument)
		chunks.POST("/search/similarity", h.Chunk.SearchSimilar)
		chunks.POST("/search/query", h.Chunk.SearchQuery)
		chunks.POST("/search/tags", h.Chunk.SearchByTags)
		chunks.GET("/:id", h.Chunk.Get)
		chunks.DELETE("/:id", h.Chunk.Delete)
		chunks.GET("/:id/tags", h.Chunk.GetTags)
		chunks.PUT("/:id/tags", h.Chunk.SetTags)
		chunks.POST("/:id/tags", h.Chunk.AddTags)
		chunks.DELETE("/:id/tags", h.Chunk.RemoveTags)

		tags := api.Group("/tags")
		tags.GET("", h.Tag.List)
		tags.POST("", h.Tag.Create)
		tags.GET("/:id", h.Tag.Get)
		tags.PUT("/:id", h.Tag.Update)
		tags.DELETE("/:id", h.Tag.Delete)

		components := api.Group("/components")
		components.POST("", h.Component.Create)
		components.POST("/bulk", h.Component.CreateBulk)
		components.POST("/search/similarity", h.Component.SearchSimilar)
		components.GET("/chunk/:chunkId", h.Component.ListByChunk)
		components.DELETE("/chunk/:chunkId", h.Component.DeleteByChunk)
		components.GET("/:id", h.Component.Get)
		components.PUT("/:id", h.Component.Update)
		components.DELETE("/:id", h.Component.Delete)
	}

	logger.Infow("HTTP routes registered", "routes", len(r.Routes()))
	return r
}
