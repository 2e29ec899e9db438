package eventbus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// KillSwitchCommand is the payload operators publish to engage or disengage
// the global kill switch.
type KillSwitchCommand struct {
	Engage bool   `json:"engage"`
	Reason string `json:"reason"`
}

// ApprovalResolution is the payload an external approval UI publishes when a
// pending approval is decided.
type ApprovalResolution struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
	Approver   string `json:"approver"`
	Comment    string `json:"comment,omitempty"`
}

// KillSwitchHandler reacts to operator kill switch commands.
type KillSwitchHandler interface {
	EngageKillSwitch(reason string)
	DisengageKillSwitch()
}

// ApprovalResolver completes a pending approval request.
type ApprovalResolver interface {
	Resolve(approvalID string, approved bool, approver, comment string) error
}

// Subscriber listens for operator commands and external approval resolutions.
type Subscriber struct {
	conn          *nats.Conn
	subscriptions []*nats.Subscription

	killSwitch KillSwitchHandler
	approvals  ApprovalResolver
}

// NewSubscriber connects to NATS and returns a subscriber wired to the given
// handlers.
func NewSubscriber(natsURL string, killSwitch KillSwitchHandler, approvals ApprovalResolver) (*Subscriber, error) {
	conn, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Remedy (Sub) connected to NATS at %s", natsURL)

	return &Subscriber{
		conn:       conn,
		killSwitch: killSwitch,
		approvals:  approvals,
	}, nil
}

// Start begins listening for operator commands and approval resolutions.
func (s *Subscriber) Start() error {
	sub, err := s.conn.Subscribe(SubjectKillSwitch, s.handleKillSwitch)
	if err != nil {
		return err
	}
	s.subscriptions = append(s.subscriptions, sub)

	sub, err = s.conn.Subscribe(SubjectApprovalResolved, s.handleApprovalResolved)
	if err != nil {
		return err
	}
	s.subscriptions = append(s.subscriptions, sub)

	log.Printf("Subscribed to %s and %s", SubjectKillSwitch, SubjectApprovalResolved)
	return nil
}

func (s *Subscriber) handleKillSwitch(msg *nats.Msg) {
	var cmd KillSwitchCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		log.Printf("Failed to unmarshal kill switch command: %v", err)
		return
	}

	if cmd.Engage {
		s.killSwitch.EngageKillSwitch(cmd.Reason)
	} else {
		s.killSwitch.DisengageKillSwitch()
	}
}

func (s *Subscriber) handleApprovalResolved(msg *nats.Msg) {
	var res ApprovalResolution
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		log.Printf("Failed to unmarshal approval resolution: %v", err)
		return
	}

	if err := s.approvals.Resolve(res.ApprovalID, res.Approved, res.Approver, res.Comment); err != nil {
		log.Printf("Warning: failed to resolve approval %s: %v", res.ApprovalID, err)
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	for _, sub := range s.subscriptions {
		sub.Unsubscribe()
	}

	if s.conn != nil {
		s.conn.Close()
		log.Printf("Remedy (Sub) disconnected from NATS")
	}
}
