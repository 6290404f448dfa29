package notify

import (
	"context"

	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
)

// LogDispatcher only records the notification. It is the default when no Firebase project is configured.
type LogDispatcher struct{}

func (LogDispatcher) Send(_ context.Context, msg *Message) error {
	common.GetCategoryLogger(common.LoggerNameNotifier, common.LoggerCategoryIOTDispatch).
		Info("Push notification (log only)",
			zap.String("title", msg.Title),
			zap.String("body", msg.Body),
			zap.Any("data", msg.Data),
			zap.Bool("android_hint", msg.Android != nil))
	return nil
}
