// Package events fans finished-request records out to NATS so downstream
// consumers (analytics, anomaly detection) can subscribe without touching
// the serving path.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-tracker/internal/classify"
	"github.com/technosupport/ts-tracker/internal/tracker"
)

// RequestEvent is the published envelope for one finished request.
type RequestEvent struct {
	EventID uuid.UUID `json:"event_id"`
	Source  string    `json:"source"` // "tracker"

	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`

	IsCrawler    bool   `json:"is_crawler"`
	IsMobile     bool   `json:"is_mobile"`
	IsBackground bool   `json:"is_background"`
	TrackView    bool   `json:"track_view"`
	LoggedIn     bool   `json:"logged_in"`
	CacheStatus  string `json:"cache_status,omitempty"`

	DurationMs   float64 `json:"duration_ms"`
	QueueSeconds float64 `json:"queue_seconds,omitempty"`
	RedisCalls   int     `json:"redis_calls"`
	SQLCalls     int     `json:"sql_calls"`

	OccurredAt time.Time `json:"occurred_at"`
}

// conn is the slice of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
}

type Publisher struct {
	conn       conn
	subject    string
	maxRetries int
}

func NewPublisher(conn conn, subject string, maxRetries int) *Publisher {
	return &Publisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

func (p *Publisher) Publish(evt *RequestEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}

		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

// Callback adapts the publisher to the detailed-log registry. Publish errors
// are swallowed; event delivery is best-effort.
func (p *Publisher) Callback() tracker.DetailedLogFunc {
	return func(r *http.Request, m classify.Metrics) {
		_ = p.Publish(&RequestEvent{
			EventID:      uuid.New(),
			Source:       "tracker",
			Method:       r.Method,
			Path:         r.URL.Path,
			Status:       m.Status,
			IsCrawler:    m.IsCrawler,
			IsMobile:     m.IsMobile,
			IsBackground: m.IsBackground,
			TrackView:    m.TrackView,
			LoggedIn:     m.HasAuthCookie,
			CacheStatus:  m.CacheStatus,
			DurationMs:   float64(m.Duration) / float64(time.Millisecond),
			QueueSeconds: m.QueueSeconds,
			RedisCalls:   m.RedisCalls,
			SQLCalls:     m.SQLCalls,
			OccurredAt:   time.Now().UTC(),
		})
	}
}
