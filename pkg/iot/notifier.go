package iot

import (
	"context"

	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/db"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
	"liyu1981.xyz/seizure-alert-service/pkg/notify"
)

// ChangeTriggeredNotifier reacts to alerts appearing in the store's change feed, independently of
// the request that wrote them. It has no caller to report to, so it only logs.
type ChangeTriggeredNotifier struct {
	Store      db.Store
	Dispatcher notify.Dispatcher
}

func NewChangeTriggeredNotifier(store db.Store, dispatcher notify.Dispatcher) *ChangeTriggeredNotifier {
	return &ChangeTriggeredNotifier{Store: store, Dispatcher: dispatcher}
}

// Start subscribes to the change feed and consumes it in a goroutine. The returned channel is
// closed once the feed is closed or ctx is done.
func (n *ChangeTriggeredNotifier) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	events := n.Store.Subscribe(ctx)

	go func() {
		defer close(done)
		n.Run(ctx, events)
	}()

	return done
}

func (n *ChangeTriggeredNotifier) Run(ctx context.Context, events <-chan models.AlertCreated) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			n.HandleAlertCreated(ctx, event)
		}
	}
}

// HandleAlertCreated sends the high-risk notification for one created alert. It reports whether a
// notification was handed to the dispatcher successfully.
func (n *ChangeTriggeredNotifier) HandleAlertCreated(ctx context.Context, event models.AlertCreated) bool {
	logger := common.GetLoggerWith(
		common.LoggerNameNotifier,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTChangeFeed),
		zap.String("device_id", event.DeviceID),
		zap.String("alert_id", event.AlertID),
	)

	logger.Info("Alert data", zap.Reflect("alert", event.Alert))

	if !ShouldNotify(event.Alert.Probability) {
		logger.Info("Probability is below 0.8, not sending notification")
		return false
	}

	device, err := n.Store.GetDevice(ctx, event.DeviceID)
	if err != nil {
		logger.Error("Error sending FCM notification", zap.Error(err))
		return false
	}

	if !device.HasDeliveryToken() {
		logger.Info("Device has no FCM token")
		return false
	}

	msg := notify.NewAlertMessage(device.FCMToken, event.DeviceID, event.AlertID, event.Alert.Probability).
		WithAndroidHint()
	if err := n.Dispatcher.Send(ctx, msg); err != nil {
		logger.Error("Error sending FCM notification", zap.Error(err))
		return false
	}

	logger.Info("Push notification sent")
	return true
}
