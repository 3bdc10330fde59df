package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stateforward/go-hfsm/pkg/plantuml"
	"github.com/stateforward/go-hfsm/player"
)

func router(driver *player.Driver, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, driver.Snapshot())
	})
	engine.GET("/diagram", func(c *gin.Context) {
		var diagram strings.Builder
		if err := plantuml.Generate(&diagram, driver.Machine.Model(), driver.Machine.IsActive); err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.String(http.StatusOK, diagram.String())
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return engine
}
