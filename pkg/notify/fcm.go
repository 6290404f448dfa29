package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
)

type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMDispatcher sends through Firebase Cloud Messaging.
type FCMDispatcher struct {
	client messagingClient
}

func NewFCMDispatcher(ctx context.Context, app *firebase.App) (*FCMDispatcher, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCMDispatcher{client: client}, nil
}

func toFCMMessage(msg *Message) *messaging.Message {
	fcm := &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}

	if msg.CollapseKey != "" || msg.Android != nil {
		fcm.Android = &messaging.AndroidConfig{CollapseKey: msg.CollapseKey}
		if msg.Android != nil {
			fcm.Android.Notification = &messaging.AndroidNotification{
				ChannelID: msg.Android.ChannelID,
				Sound:     msg.Android.Sound,
			}
		}
	}

	return fcm
}

func (d *FCMDispatcher) Send(ctx context.Context, msg *Message) error {
	id, err := d.client.Send(ctx, toFCMMessage(msg))
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}

	common.GetCategoryLogger(common.LoggerNameNotifier, common.LoggerCategoryIOTDispatch).
		Info("Push notification sent", zap.String("message_id", id), zap.Any("data", msg.Data))
	return nil
}
