// Package web exposes the public ORN sharing boundary over HTTP:
// external indexers can read high-confidence mappings and contribute
// their own, which are stored with community provenance.
package web

import (
	"log"
	"strconv"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/deobfuscate"
	"github.com/go-while/go-nzbidx/internal/models"
)

// WebServer serves the public mapping endpoints.
type WebServer struct {
	DB       *database.Database
	Router   *gin.Engine
	Port     int
	Pipeline *deobfuscate.Pipeline
}

// NewServer creates the router with security middleware applied.
func NewServer(db *database.Database, pipeline *deobfuscate.Pipeline, port int) *WebServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.SetTrustedProxies([]string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})

	router.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	server := &WebServer{
		DB:       db,
		Router:   router,
		Port:     port,
		Pipeline: pipeline,
	}
	server.setupRoutes()
	return server
}

func (s *WebServer) setupRoutes() {
	s.Router.GET("/ping", s.pingHandler)

	public := s.Router.Group("/public")
	{
		public.GET("/mappings", s.mappingsHandler)
		public.POST("/contribute", s.contributeHandler)
	}
}

// Start runs the HTTP listener; blocks until the listener fails.
func (s *WebServer) Start() error {
	addr := ":" + strconv.Itoa(s.Port)
	log.Printf("[WEB] starting HTTP server on %s", addr)
	return s.Router.Run(addr)
}

func (s *WebServer) pingHandler(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// mappingsHandler returns ORN mappings at or above the requested
// confidence, newest first.
func (s *WebServer) mappingsHandler(c *gin.Context) {
	minConfidence := 0.9
	if raw := c.Query("min_confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			c.JSON(400, gin.H{"error": "invalid min_confidence"})
			return
		}
		minConfidence = parsed
	}
	limit := 1000
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(400, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	mappings, err := s.DB.GetORNMappingsAbove(minConfidence, limit)
	if err != nil {
		log.Printf("[WEB] failed to list mappings: %v", err)
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}
	c.JSON(200, gin.H{"count": len(mappings), "mappings": mappings})
}

// contributePayload is the write contract of the sharing boundary.
type contributePayload struct {
	ObfuscatedHash string  `json:"obfuscated_hash" binding:"required"`
	RealName       string  `json:"real_name" binding:"required"`
	Confidence     float64 `json:"confidence"`
}

// contributeHandler stores a community mapping. Source is forced to
// community and confidence is capped.
func (s *WebServer) contributeHandler(c *gin.Context) {
	var payload contributePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(400, gin.H{"error": "obfuscated_hash and real_name are required"})
		return
	}
	if len(payload.RealName) < 5 || len(payload.RealName) > 250 {
		c.JSON(400, gin.H{"error": "real_name length out of range"})
		return
	}
	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.5
	}
	if confidence > deobfuscate.ConfidenceCommunityMax {
		confidence = deobfuscate.ConfidenceCommunityMax
	}

	mapping := &models.ORNMapping{
		ObfuscatedHash: deobfuscate.NormalizeKey(payload.ObfuscatedHash),
		RealName:       payload.RealName,
		Source:         models.ORNSourceCommunity,
		Confidence:     confidence,
	}
	if mapping.ObfuscatedHash == "" {
		c.JSON(400, gin.H{"error": "obfuscated_hash is empty after normalization"})
		return
	}
	if err := s.DB.UpsertORNMapping(mapping); err != nil {
		log.Printf("[WEB] failed to store contribution: %v", err)
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}
	c.JSON(200, gin.H{"status": "stored", "obfuscated_hash": mapping.ObfuscatedHash})
}
