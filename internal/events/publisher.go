// Package events publishes pipeline events for downstream consumers
// (indexers, notification services) over NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/logger"
)

// Publisher emits events at run and record granularity. Implementations
// must be safe for concurrent use; publishing is best-effort and never
// fails a run.
type Publisher interface {
	RecordCreated(rec *domain.ContentRecord)
	RunCompleted(run *domain.CrawlRun)
	Close()
}

// RecordCreatedEvent is the payload for newly inserted content records.
type RecordCreatedEvent struct {
	RecordID  string    `json:"record_id"`
	JobID     string    `json:"job_id"`
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
}

// RunCompletedEvent is the payload for finished crawl runs.
type RunCompletedEvent struct {
	RunID           string            `json:"run_id"`
	JobID           string            `json:"job_id"`
	Outcome         domain.RunOutcome `json:"outcome"`
	RecordsProduced int               `json:"records_produced"`
	EndedAt         time.Time         `json:"ended_at"`
}

// NATSPublisher publishes events to NATS subjects under a configured prefix.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    logger.Interface
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, prefix string, log logger.Interface) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		log:    log.WithComponent("events"),
	}, nil
}

// RecordCreated publishes a record-created event.
func (p *NATSPublisher) RecordCreated(rec *domain.ContentRecord) {
	p.publish(p.prefix+".content.created", RecordCreatedEvent{
		RecordID:  rec.ID,
		JobID:     rec.JobID,
		Title:     rec.Title,
		SourceURL: rec.SourceURL,
		CreatedAt: rec.CreatedAt,
	})
}

// RunCompleted publishes a run-completed event.
func (p *NATSPublisher) RunCompleted(run *domain.CrawlRun) {
	p.publish(p.prefix+".run.completed", RunCompletedEvent{
		RunID:           run.ID,
		JobID:           run.JobID,
		Outcome:         run.Outcome,
		RecordsProduced: run.RecordsProduced,
		EndedAt:         run.EndedAt,
	})
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("drain nats connection", "error", err)
	}
}

func (p *NATSPublisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("publish event", "subject", subject, "error", err)
	}
}

// NoopPublisher discards all events. Used when NATS is not configured and
// in tests.
type NoopPublisher struct{}

// NewNoop creates a publisher that discards everything.
func NewNoop() Publisher { return &NoopPublisher{} }

// RecordCreated discards the event.
func (*NoopPublisher) RecordCreated(*domain.ContentRecord) {}

// RunCompleted discards the event.
func (*NoopPublisher) RunCompleted(*domain.CrawlRun) {}

// Close does nothing.
func (*NoopPublisher) Close() {}
