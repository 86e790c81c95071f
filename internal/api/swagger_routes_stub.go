//go:build !swagger

package api

import "github.com/gin-gonic/gin"

// registerSwaggerRoutes is empty in non-swagger builds.
func registerSwaggerRoutes(engine *gin.Engine) {}
