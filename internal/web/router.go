// Package web serves the public reminder feeds. The feed ID is a capability:
// knowing it grants read access to one user's reminder history.
package web

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"starminder/config"
	"starminder/internal/database"
)

// feedLimit caps how much history one feed request returns.
const feedLimit = 20

type Server struct {
	db      *database.GormDB
	baseURL string
}

// SetupRouter builds the feed router.
func SetupRouter(db *database.GormDB, cfg config.ServerConfig) *gin.Engine {
	s := &Server{db: db, baseURL: cfg.BaseURL}

	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.handleHealth)
	r.GET("/feeds/:feed_id", s.handleAtomFeed)
	r.GET("/feeds/:feed_id/posts", s.handlePostsJSON)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAtomFeed(c *gin.Context) {
	feedID := c.Param("feed_id")
	user, reminders, err := s.db.RemindersForFeed(feedID, feedLimit)
	if err != nil {
		s.feedError(c, err)
		return
	}

	body, err := renderAtom(s.baseURL, feedID, user, reminders)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render feed"})
		return
	}
	c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", body)
}

func (s *Server) handlePostsJSON(c *gin.Context) {
	feedID := c.Param("feed_id")
	user, reminders, err := s.db.RemindersForFeed(feedID, feedLimit)
	if err != nil {
		s.feedError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":  user.Username,
		"reminders": reminders,
	})
}

func (s *Server) feedError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
