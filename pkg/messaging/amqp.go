// Package messaging publishes finalized assessment events to AMQP for
// downstream consumers.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"hireprep-server/pkg/metrics"
	"hireprep-server/pkg/session"
)

const (
	dialTimeout       = 5 * time.Second
	reconnectInterval = 5 * time.Second
)

// AssessmentEvent is the wire format for one graded interview question.
type AssessmentEvent struct {
	SessionID  string                   `json:"session_id"`
	Assessment session.QuestionAnalysis `json:"assessment"`
	Timestamp  time.Time                `json:"timestamp"`
}

// Publisher sends assessment events to an AMQP queue. With no URL
// configured it degrades to a silent no-op so the rest of the pipeline
// never depends on a broker being present.
type Publisher struct {
	logger    *logrus.Entry
	url       string
	queueName string

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	stopChan  chan struct{}
}

// NewPublisher creates an assessment event publisher. An empty URL disables
// publishing entirely.
func NewPublisher(logger *logrus.Logger, url, queueName string) *Publisher {
	entry := logger.WithField("component", "messaging")
	if url == "" {
		entry.Warn("AMQP_URL not set, assessment events will not be published")
	}
	return &Publisher{
		logger:    entry,
		url:       url,
		queueName: queueName,
		stopChan:  make(chan struct{}),
	}
}

// Enabled reports whether a broker URL was configured.
func (p *Publisher) Enabled() bool {
	return p.url != ""
}

// Connect establishes the AMQP connection and declares the queue. Calling
// it on a disabled publisher is a no-op.
func (p *Publisher) Connect() error {
	if !p.Enabled() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return nil
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial: amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.connected = true
	p.stopChan = make(chan struct{})

	p.logger.WithFields(logrus.Fields{
		"url":   p.url,
		"queue": p.queueName,
	}).Info("Connected to AMQP server")

	go p.monitorConnection(conn)

	return nil
}

// monitorConnection reconnects with a fixed backoff when the broker drops
// the connection.
func (p *Publisher) monitorConnection(conn *amqp.Connection) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-p.stopChan:
		return
	case amqpErr := <-closeChan:
		if amqpErr == nil {
			return
		}
		p.logger.WithField("error", amqpErr.Error()).Warn("AMQP connection lost, reconnecting")
	}

	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			if err := p.Connect(); err != nil {
				p.logger.WithError(err).Warn("AMQP reconnect failed, will retry")
				continue
			}
			return
		}
	}
}

// PublishAssessment publishes one graded question. A disabled publisher
// returns nil without doing anything.
func (p *Publisher) PublishAssessment(sessionID string, qa session.QuestionAnalysis) error {
	if !p.Enabled() {
		return nil
	}

	p.mu.RLock()
	connected := p.connected
	channel := p.channel
	p.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected to AMQP server")
	}

	event := AssessmentEvent{
		SessionID:  sessionID,
		Assessment: qa,
		Timestamp:  time.Now(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment event: %w", err)
	}

	err = channel.Publish(
		"",          // default exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish assessment event: %w", err)
	}

	metrics.AssessmentEventsPublished.Inc()
	p.logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"question_id": qa.QuestionID,
	}).Debug("Assessment event published")

	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Close shuts the connection down.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return
	}

	close(p.stopChan)
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.connected = false
	p.logger.Info("Disconnected from AMQP server")
}
