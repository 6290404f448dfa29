package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/iot"
	"liyu1981.xyz/seizure-alert-service/pkg/models"

	z "github.com/Oudwins/zog"
)

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRestfulServer)
}

// sendError answers with {"error": message}; err, when present, is only logged.
func sendError(c *gin.Context, statusCode int, message string, err error) {
	if err != nil {
		logger().Error(message,
			zap.String("path", c.FullPath()),
			zap.Int("status", statusCode),
			zap.Error(err))
	}
	c.JSON(statusCode, gin.H{"error": message})
}

func (rs *RestfulServer) tooManyRequests(c *gin.Context, deviceID string) bool {
	if rs.CheckDeviceLimiter(deviceID) {
		return false
	}
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	return true
}

type DeviceQuery struct {
	DeviceID string `form:"device_id"`
}

var deviceQuerySchema = z.Struct(z.Shape{
	"DeviceID": z.String().Required(),
})

func (rs *RestfulServer) bindDeviceQuery(c *gin.Context) (string, bool) {
	var q DeviceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		sendError(c, http.StatusBadRequest, "Missing deviceId", err)
		return "", false
	}
	if errs := deviceQuerySchema.Validate(&q); len(errs) > 0 {
		sendError(c, http.StatusBadRequest, "Missing deviceId", nil)
		return "", false
	}
	if rs.tooManyRequests(c, q.DeviceID) {
		return "", false
	}
	return q.DeviceID, true
}

func (rs *RestfulServer) GetLatestProbability(c *gin.Context) {
	deviceID, ok := rs.bindDeviceQuery(c)
	if !ok {
		return
	}

	probability, err := rs.Iot.Device.GetLatestProbability(c.Request.Context(), deviceID)
	if common.IsNotFound(err) {
		sendError(c, http.StatusNotFound, "Device not found", nil)
		return
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Error getting latest probability", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"probability": probability})
}

func (rs *RestfulServer) GetRecentReadings(c *gin.Context) {
	deviceID, ok := rs.bindDeviceQuery(c)
	if !ok {
		return
	}

	count := common.ParseIntOr(c.Query("count"), iot.DefaultReadingsCount)
	readings, err := rs.Iot.Reading.GetRecentReadings(c.Request.Context(), deviceID, count)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Error fetching readings", err)
		return
	}

	c.JSON(http.StatusOK, models.ReadingViews(readings))
}

func (rs *RestfulServer) GetAlertHistory(c *gin.Context) {
	deviceID, ok := rs.bindDeviceQuery(c)
	if !ok {
		return
	}

	limit := common.ParseIntOr(c.Query("limit"), iot.DefaultAlertsLimit)
	alerts, err := rs.Iot.Alert.GetAlertHistory(c.Request.Context(), deviceID, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Error fetching alerts", err)
		return
	}

	c.JSON(http.StatusOK, models.AlertViews(alerts))
}

type FcmTokenRequest struct {
	DeviceID string `json:"device_id"`
	FcmToken string `json:"fcm_token"`
}

var fcmTokenRequestSchema = z.Struct(z.Shape{
	"DeviceID": z.String().Required(),
	"FcmToken": z.String().Required(),
})

func (rs *RestfulServer) UpdateFcmToken(c *gin.Context) {
	var req FcmTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Missing device_id or fcm_token", nil)
		return
	}
	if errs := fcmTokenRequestSchema.Validate(&req); len(errs) > 0 {
		sendError(c, http.StatusBadRequest, "Missing device_id or fcm_token", nil)
		return
	}

	if rs.tooManyRequests(c, req.DeviceID) {
		return
	}

	if err := rs.Iot.Device.UpdateDeliveryToken(c.Request.Context(), req.DeviceID, req.FcmToken); err != nil {
		sendError(c, http.StatusInternalServerError, "Error updating FCM token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type AcknowledgeRequest struct {
	DeviceID string `json:"device_id"`
	AlertID  string `json:"alert_id"`
}

var acknowledgeRequestSchema = z.Struct(z.Shape{
	"DeviceID": z.String().Required(),
	"AlertID":  z.String().Required(),
})

func (rs *RestfulServer) AcknowledgeAlert(c *gin.Context) {
	var req AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Missing device_id or alert_id", nil)
		return
	}
	if errs := acknowledgeRequestSchema.Validate(&req); len(errs) > 0 {
		sendError(c, http.StatusBadRequest, "Missing device_id or alert_id", nil)
		return
	}

	if rs.tooManyRequests(c, req.DeviceID) {
		return
	}

	err := rs.Iot.Alert.AcknowledgeAlert(c.Request.Context(), req.DeviceID, req.AlertID)
	if common.IsNotFound(err) {
		sendError(c, http.StatusNotFound, "Alert not found", nil)
		return
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Error acknowledging alert", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ReadingRequest takes probability by pointer so an absent value is told apart from 0.
type ReadingRequest struct {
	DeviceID    string   `json:"device_id"`
	Probability *float64 `json:"probability"`
}

var readingRequestSchema = z.Struct(z.Shape{
	"DeviceID": z.String().Required(),
})

func (rs *RestfulServer) PostReading(c *gin.Context) {
	const invalid = "Missing or invalid device_id or probability"

	var req ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, invalid, nil)
		return
	}
	if errs := readingRequestSchema.Validate(&req); len(errs) > 0 || req.Probability == nil {
		sendError(c, http.StatusBadRequest, invalid, nil)
		return
	}

	if rs.tooManyRequests(c, req.DeviceID) {
		return
	}

	alert, err := rs.Iot.Reading.PostReading(c.Request.Context(), req.DeviceID, *req.Probability)
	if common.IsInvalidArgument(err) {
		sendError(c, http.StatusBadRequest, invalid, nil)
		return
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Error posting reading", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"alert_id":      alert.ID,
		"alert_message": alert.AlertMessage,
	})
}

type LimiterRequest struct {
	DeviceID string  `json:"device_id"`
	Rate     float64 `json:"rate"`
	Burst    int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"DeviceID": z.String().Required(),
	"Rate":     z.Float64().Required().GT(0),
	"Burst":    z.Int().Required().GT(0),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	var req LimiterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Missing or invalid device_id, rate or burst", nil)
		return
	}
	if errs := limiterRequestSchema.Validate(&req); len(errs) > 0 {
		sendError(c, http.StatusBadRequest, "Missing or invalid device_id, rate or burst", nil)
		return
	}

	rs.SetLimiter(req.DeviceID, req.Rate, req.Burst)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
