package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// setupStaticFiles serves the built browser UI from dir, falling back to
// index.html for SPA routes. With no directory configured the gateway runs
// API-only and the frontend is served separately.
func setupStaticFiles(router *gin.Engine, dir string) {
	if dir == "" {
		slog.Info("no static directory configured, running API-only")
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"message": "Frontend is served separately",
				"hint":    "Set STATIC_DIR to serve built assets from this process",
			})
		})
		return
	}

	slog.Info("serving static assets", "dir", dir)
	router.NoRoute(func(c *gin.Context) {
		urlPath := c.Request.URL.Path
		if strings.HasPrefix(urlPath, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
			return
		}

		clean := filepath.Clean("/" + urlPath)
		target := filepath.Join(dir, clean)
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			c.File(target)
			return
		}

		// SPA fallback
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.String(http.StatusNotFound, "404 page not found")
			return
		}
		c.File(index)
	})
}
