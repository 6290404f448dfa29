package db

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
)

const (
	collectionDevices  = "devices"
	collectionReadings = "readings"
	collectionAlerts   = "alerts"

	defaultListenerWindow = time.Hour
	// alert_time is the commit time of the reading, a little before the alert's own commit
	listenerOverlap = 5 * time.Minute
)

// FirestoreStore keeps devices as documents with readings and alerts as per-device
// subcollections: devices/{device_id}/readings/{auto_id}, devices/{device_id}/alerts/{alert_id}.
type FirestoreStore struct {
	client         *firestore.Client
	listenerWindow time.Duration
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, listenerWindow: defaultListenerWindow}
}

func (s *FirestoreStore) device(deviceID string) *firestore.DocumentRef {
	return s.client.Collection(collectionDevices).Doc(deviceID)
}

func (s *FirestoreStore) AppendReading(ctx context.Context, deviceID string, probability float64) (*models.Reading, error) {
	_, wr, err := s.device(deviceID).Collection(collectionReadings).Add(ctx, map[string]any{
		"timestamp":   firestore.ServerTimestamp,
		"probability": probability,
	})
	if err != nil {
		return nil, fmt.Errorf("append reading: %w", err)
	}
	// the server timestamp resolves to the commit time of the write
	return &models.Reading{
		DeviceID:    deviceID,
		Timestamp:   wr.UpdateTime.UTC(),
		Probability: probability,
	}, nil
}

func (s *FirestoreStore) SetLatestProbability(ctx context.Context, deviceID string, probability float64) error {
	_, err := s.device(deviceID).Set(ctx, map[string]any{"latest_probability": probability}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set latest probability: %w", err)
	}
	return nil
}

func (s *FirestoreStore) SetDeliveryToken(ctx context.Context, deviceID string, token string) error {
	_, err := s.device(deviceID).Set(ctx, map[string]any{"fcm_token": token}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set delivery token: %w", err)
	}
	return nil
}

func (s *FirestoreStore) AppendAlert(ctx context.Context, deviceID string, alert *models.Alert) error {
	data := map[string]any{
		"alert_time":    alert.AlertTime,
		"probability":   alert.Probability,
		"acknowledged":  alert.Acknowledged,
		"alert_message": string(alert.AlertMessage),
	}
	if alert.AlertTime.IsZero() {
		data["alert_time"] = firestore.ServerTimestamp
	}

	ref, wr, err := s.device(deviceID).Collection(collectionAlerts).Add(ctx, data)
	if err != nil {
		return fmt.Errorf("append alert: %w", err)
	}

	alert.ID = ref.ID
	alert.DeviceID = deviceID
	if alert.AlertTime.IsZero() {
		alert.AlertTime = wr.UpdateTime.UTC()
	}
	return nil
}

func (s *FirestoreStore) AcknowledgeAlert(ctx context.Context, deviceID string, alertID string) error {
	ref := s.device(deviceID).Collection(collectionAlerts).Doc(alertID)
	// Update fails with NotFound instead of creating the document
	_, err := ref.Update(ctx, []firestore.Update{{Path: "acknowledged", Value: true}})
	if status.Code(err) == codes.NotFound {
		return common.NotFound("alert %s of device %s", alertID, deviceID)
	}
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	snap, err := s.device(deviceID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, common.NotFound("device %s", deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	device := models.Device{ID: deviceID}
	if err := snap.DataTo(&device); err != nil {
		return nil, fmt.Errorf("decode device: %w", err)
	}
	return &device, nil
}

func (s *FirestoreStore) RecentReadings(ctx context.Context, deviceID string, count int) ([]models.Reading, error) {
	query := s.device(deviceID).Collection(collectionReadings).OrderBy("timestamp", firestore.Desc)
	if count >= 0 {
		query = query.Limit(count)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}

	readings := make([]models.Reading, 0, len(docs))
	for _, doc := range docs {
		reading := models.Reading{DeviceID: deviceID}
		if err := doc.DataTo(&reading); err != nil {
			return nil, fmt.Errorf("decode reading %s: %w", doc.Ref.ID, err)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func (s *FirestoreStore) AlertHistory(ctx context.Context, deviceID string, limit int) ([]models.Alert, error) {
	query := s.device(deviceID).Collection(collectionAlerts).OrderBy("alert_time", firestore.Desc)
	if limit >= 0 {
		query = query.Limit(limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("alert history: %w", err)
	}

	alerts := make([]models.Alert, 0, len(docs))
	for _, doc := range docs {
		alert, err := decodeAlert(doc)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}

func decodeAlert(doc *firestore.DocumentSnapshot) (*models.Alert, error) {
	alert := models.Alert{ID: doc.Ref.ID}
	if parent := doc.Ref.Parent.Parent; parent != nil {
		alert.DeviceID = parent.ID
	}
	if err := doc.DataTo(&alert); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w", doc.Ref.ID, err)
	}
	return &alert, nil
}

// Subscribe listens on the alerts collection group for documents created from now on. Alerts
// already present in the listener's first snapshot are the baseline and are not reported, so the
// local clock only bounds the query window. The listener is reopened every listenerWindow with a
// window derived from the server's read time, which keeps its result set bounded.
func (s *FirestoreStore) Subscribe(ctx context.Context) <-chan models.AlertCreated {
	out := make(chan models.AlertCreated, changeFeedBuffer)

	go func() {
		defer close(out)

		log := common.GetCategoryLogger(common.LoggerNameStore, common.LoggerCategoryIOTChangeFeed)
		since := time.Now().UTC().Add(-listenerOverlap)
		// nil on the first pass: everything in the first snapshot predates the subscription
		var seen map[string]struct{}

		for {
			readTime, current, ok := s.listenAlerts(ctx, out, since, seen, log)
			if !ok {
				return
			}
			if !readTime.IsZero() {
				since = readTime.Add(-listenerOverlap)
			}
			seen = current
			log.Debug("Reopening alert snapshot listener", zap.Time("since", since), zap.Int("seen", len(seen)))
		}
	}()

	return out
}

// listenAlerts runs one listener until its window elapses. It returns the last server read time and
// the paths of every alert it saw; ok is false once the subscription should end.
func (s *FirestoreStore) listenAlerts(
	ctx context.Context,
	out chan<- models.AlertCreated,
	since time.Time,
	seen map[string]struct{},
	log *zap.Logger,
) (readTime time.Time, current map[string]struct{}, ok bool) {
	windowCtx, cancel := context.WithTimeout(ctx, s.listenerWindow)
	defer cancel()

	it := s.client.CollectionGroup(collectionAlerts).Where("alert_time", ">=", since).Snapshots(windowCtx)
	defer it.Stop()

	current = map[string]struct{}{}
	first := true
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil {
				return readTime, current, false
			}
			if windowCtx.Err() != nil {
				return readTime, current, true
			}
			if status.Code(err) != codes.Canceled {
				log.Error("Alert snapshot listener stopped", zap.Error(err))
			}
			return readTime, current, false
		}
		readTime = snap.ReadTime

		for _, change := range snap.Changes {
			if change.Kind != firestore.DocumentAdded {
				continue
			}
			path := change.Doc.Ref.Path
			current[path] = struct{}{}
			if first {
				if seen == nil {
					continue
				}
				if _, dup := seen[path]; dup {
					continue
				}
			}

			alert, err := decodeAlert(change.Doc)
			if err != nil {
				log.Error("Failed to decode created alert", zap.Error(err))
				continue
			}
			select {
			case out <- models.AlertCreated{DeviceID: alert.DeviceID, AlertID: alert.ID, Alert: *alert}:
			case <-ctx.Done():
				return readTime, current, false
			}
		}
		first = false
	}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
