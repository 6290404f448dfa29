package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/iot"
)

const (
	topicPrefix = "devices/"
	topicSuffix = "/readings"

	ingestTimeout = 10 * time.Second
)

// ReadingsTopic is where a device publishes its readings.
func ReadingsTopic(deviceID string) string {
	return topicPrefix + deviceID + topicSuffix
}

// ParseReadingsTopic extracts the device id from devices/{device_id}/readings.
func ParseReadingsTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) || !strings.HasSuffix(topic, topicSuffix) {
		return "", false
	}
	deviceID := strings.TrimSuffix(strings.TrimPrefix(topic, topicPrefix), topicSuffix)
	if deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	return deviceID, true
}

type ReadingPayload struct {
	Probability *float64 `json:"probability"`
}

func ParseReadingPayload(payload []byte) (float64, error) {
	var p ReadingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, common.InvalidArgument("invalid reading payload: %v", err)
	}
	if p.Probability == nil {
		return 0, common.InvalidArgument("missing probability")
	}
	return *p.Probability, nil
}

// ReadingHook runs the ingestion handler for every message published on a readings topic. Other
// topics pass through untouched.
type ReadingHook struct {
	mqtt.HookBase
	Reading          iot.IReading
	RateLimiterStore *iot.RateLimiterStore
}

func (h *ReadingHook) ID() string {
	return "seizure-alert-readings"
}

func (h *ReadingHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnPublish,
	}, []byte{b})
}

func (h *ReadingHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	common.GetLoggerWith(common.LoggerNameMqttBroker).Info("Client connected", zap.String("client_id", cl.ID))
	return nil
}

func (h *ReadingHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	deviceID, ok := ParseReadingsTopic(pk.TopicName)
	if !ok {
		return pk, nil
	}

	if err := h.HandleReading(deviceID, pk.Payload); err != nil {
		return pk, packets.ErrRejectPacket
	}
	return pk, nil
}

// HandleReading ingests one published payload for deviceID.
func (h *ReadingHook) HandleReading(deviceID string, payload []byte) error {
	logger := common.GetLoggerWith(
		common.LoggerNameMqttBroker,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTReading),
		zap.String("device_id", deviceID),
	)

	if !h.RateLimiterStore.Allow(deviceID) {
		logger.Warn("Rate limit exceeded, dropping reading")
		return fmt.Errorf("rate limit exceeded for %s", deviceID)
	}

	probability, err := ParseReadingPayload(payload)
	if err != nil {
		logger.Warn("Rejected reading", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	alert, err := h.Reading.PostReading(ctx, deviceID, probability)
	if err != nil {
		logger.Error("Error posting reading", zap.Error(err))
		return err
	}

	logger.Info("Reading ingested", zap.String("alert_id", alert.ID), zap.String("alert_message", string(alert.AlertMessage)))
	return nil
}
