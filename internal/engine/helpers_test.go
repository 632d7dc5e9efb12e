package engine

import (
	"context"
	"sync"
	"time"

	"github.com/nwdaf-lab/hermes/internal/models"
)

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newEvent(id string, t models.AnomalyType, at time.Time, supis ...string) models.AnomalyEvent {
	return models.AnomalyEvent{
		ID: id,
		EventNotifications: []models.EventNotification{{
			Event:        "ABNORMAL_BEHAVIOUR",
			TimeStampGen: at,
			AbnorBehavrs: []models.AbnormalBehavior{{
				Supis: supis,
				Excep: models.Exception{ExcepID: t, ExcepLevel: 3},
			}},
		}},
	}
}

func withLocation(e models.AnomalyEvent, lat, lon float64) models.AnomalyEvent {
	e.EventNotifications[0].AbnorBehavrs[0].AddtMeasInfo = models.CircumstanceInfo{
		Circums: []models.Circumstance{{LocArea: models.LocationArea{Latitude: &lat, Longitude: &lon}}},
	}
	return e
}

func mustRules() *RuleSet {
	rules, err := DefaultRuleSet()
	if err != nil {
		panic(err)
	}
	return rules
}

type memoryStore struct {
	mu        sync.Mutex
	events    []models.AnomalyEvent
	insertErr error
	since     time.Time
	// loading, when set, is signalled and then blocks RecentEvents until release is closed.
	loading chan struct{}
	release chan struct{}
}

func (m *memoryStore) InsertEvent(ctx context.Context, event *models.AnomalyEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryStore) RecentEvents(ctx context.Context, since time.Time) ([]models.AnomalyEvent, error) {
	if m.loading != nil {
		m.loading <- struct{}{}
		<-m.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	out := make([]models.AnomalyEvent, 0, len(m.events))
	for _, e := range m.events {
		if !e.GeneratedAt().Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingUploader struct {
	mu    sync.Mutex
	files []models.DerivedFile
	err   error
	// uploading, when set, is signalled and then blocks the upload until release is closed.
	uploading chan struct{}
	release   chan struct{}
}

func (r *recordingUploader) UploadFile(ctx context.Context, file models.DerivedFile) (string, error) {
	if r.uploading != nil {
		r.uploading <- struct{}{}
		<-r.release
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.files = append(r.files, file)
	return "file-1", nil
}
