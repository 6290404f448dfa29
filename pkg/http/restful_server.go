package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"liyu1981.xyz/seizure-alert-service/pkg/iot"
)

type RestfulServer struct {
	Server           *gin.Engine
	Iot              *iot.IOT
	RateLimiterStore *iot.RateLimiterStore
	// AllowOrigins restricts cross-origin callers; empty means any origin.
	AllowOrigins []string
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceID string) bool {
	return rs.RateLimiterStore.Allow(deviceID)
}

func (rs *RestfulServer) SetLimiter(deviceID string, deviceRate float64, deviceBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
}

func (rs *RestfulServer) corsConfig() cors.Config {
	config := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(rs.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = rs.AllowOrigins
	}
	return config
}

func (rs *RestfulServer) Setup() {
	rs.Server.Use(cors.New(rs.corsConfig()))

	rs.Server.GET("/healthz", rs.HealthCheck)

	rs.Server.GET("/getLatestProbability", rs.GetLatestProbability)
	rs.Server.GET("/getRecentReadings", rs.GetRecentReadings)
	rs.Server.GET("/getAlertHistory", rs.GetAlertHistory)
	rs.Server.POST("/updateFcmToken", rs.UpdateFcmToken)
	rs.Server.POST("/acknowledgeAlert", rs.AcknowledgeAlert)
	rs.Server.POST("/postReading", rs.PostReading)

	rs.Server.POST("/limiter", rs.PostLimiter)
}
