package eventbus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published by the remediation pipeline.
const (
	SubjectIssueDetected  = "issues.detected"
	SubjectIssueResolved  = "issues.resolved"
	SubjectIssueEscalated = "issues.escalated"

	SubjectTriggerDecided = "triggers.decided"

	SubjectRunStarted   = "runs.started"
	SubjectRunNode      = "runs.node"
	SubjectRunCompleted = "runs.completed"

	SubjectApprovalRequested = "approvals.requested"
	SubjectApprovalResolved  = "approvals.resolved"

	SubjectKillSwitch = "operators.killswitch"
)

// Sink is the fire-and-forget event outlet the pipeline publishes through.
// Publishing never blocks run progress waiting for delivery confirmation.
type Sink interface {
	Publish(subject string, payload interface{}) error
}

// Publisher publishes pipeline events to NATS.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS and returns a publisher.
func NewPublisher(natsURL string) (*Publisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Remedy (Pub) connected to NATS at %s", natsURL)

	return &Publisher{conn: conn}, nil
}

// Publish marshals the payload as JSON and publishes it. Fire-and-forget.
func (p *Publisher) Publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.conn.Publish(subject, data)
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		log.Println("Remedy (Pub) disconnected from NATS")
	}
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Noop is a Sink that drops every event. Used when NATS is unavailable so
// the pipeline keeps running with degraded observability.
type Noop struct{}

func (Noop) Publish(subject string, payload interface{}) error {
	return nil
}
