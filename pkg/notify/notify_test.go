package notify

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	_ "liyu1981.xyz/seizure-alert-service/pkg/testing"
)

type fakeMessagingClient struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessagingClient) Send(_ context.Context, message *messaging.Message) (string, error) {
	f.sent = append(f.sent, message)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("projects/demo/messages/%d", len(f.sent)), nil
}

func TestNewAlertMessage(t *testing.T) {
	msg := NewAlertMessage("tok1", "d1", "a1", 0.95)

	assert.Equal(t, "tok1", msg.Token)
	assert.Equal(t, AlertTitle, msg.Title)
	assert.Equal(t, "High seizure probability: 95.0%", msg.Body)
	assert.Equal(t, map[string]string{
		"alert_id":    "a1",
		"device_id":   "d1",
		"probability": "0.95",
	}, msg.Data)
	assert.Equal(t, "a1", msg.CollapseKey)
	assert.Nil(t, msg.Android)

	assert.Equal(t, "High seizure probability: 80.0%", NewAlertMessage("t", "d", "a", 0.8).Body)
	assert.Equal(t, "1", NewAlertMessage("t", "d", "a", 1).Data["probability"])

	msg = NewAlertMessage("tok1", "d1", "a1", 0.95).WithAndroidHint()
	require.NotNil(t, msg.Android)
	assert.Equal(t, "seizure_alerts", msg.Android.ChannelID)
	assert.Equal(t, "alert_sound", msg.Android.Sound)
}

func TestToFCMMessage(t *testing.T) {
	fcm := toFCMMessage(NewAlertMessage("tok1", "d1", "a1", 0.95))
	assert.Equal(t, "tok1", fcm.Token)
	assert.Equal(t, AlertTitle, fcm.Notification.Title)
	assert.Equal(t, "0.95", fcm.Data["probability"])
	require.NotNil(t, fcm.Android)
	assert.Equal(t, "a1", fcm.Android.CollapseKey)
	assert.Nil(t, fcm.Android.Notification)

	fcm = toFCMMessage(NewAlertMessage("tok1", "d1", "a1", 0.95).WithAndroidHint())
	require.NotNil(t, fcm.Android.Notification)
	assert.Equal(t, "seizure_alerts", fcm.Android.Notification.ChannelID)
	assert.Equal(t, "alert_sound", fcm.Android.Notification.Sound)

	fcm = toFCMMessage(&Message{Token: "tok1", Title: "t", Body: "b"})
	assert.Nil(t, fcm.Android)
}

func TestFCMDispatcher(t *testing.T) {
	var buf = &bytes.Buffer{}
	common.SetTestCaptureLogger(buf, zapcore.InfoLevel)

	client := &fakeMessagingClient{}
	dispatcher := &FCMDispatcher{client: client}

	err := dispatcher.Send(context.Background(), NewAlertMessage("tok1", "d1", "a1", 0.95))
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	assert.Equal(t, "tok1", client.sent[0].Token)
	assert.Contains(t, buf.String(), "Push notification sent")

	client.err = fmt.Errorf("registration-token-not-registered")
	err = dispatcher.Send(context.Background(), NewAlertMessage("tok1", "d1", "a1", 0.95))
	assert.ErrorContains(t, err, "registration-token-not-registered")
}

func TestLogDispatcher(t *testing.T) {
	var buf = &bytes.Buffer{}
	common.SetTestCaptureLogger(buf, zapcore.InfoLevel)

	err := LogDispatcher{}.Send(context.Background(), NewAlertMessage("tok1", "d1", "a1", 0.95))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Push notification (log only)")
	assert.Contains(t, buf.String(), `"device_id":"d1"`)
}
