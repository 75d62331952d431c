package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JaimeStill/docflow/pkg/broker"
)

// DeadLetter is a message that could not be applied, published for manual
// inspection or replay. RowNum is the 1-based record position within a batch,
// or zero for whole messages.
type DeadLetter struct {
	Queue    string          `json:"queue"`
	Reason   string          `json:"reason"`
	RowNum   int             `json:"row_num,omitempty"`
	Raw      json.RawMessage `json:"raw"`
	FailedAt time.Time       `json:"failed_at"`
}

// DeadLetters publishes to "<prefix>.<queue>".
type DeadLetters struct {
	channel broker.Channel
	prefix  string
}

// NewDeadLetters creates a publisher under prefix.
func NewDeadLetters(channel broker.Channel, prefix string) *DeadLetters {
	return &DeadLetters{channel: channel, prefix: prefix}
}

// Subject returns the dead-letter subject for queue.
func (d *DeadLetters) Subject(queue string) string {
	return d.prefix + "." + queue
}

// Publish sends raw to the dead-letter subject of queue. raw that is not
// valid JSON is carried as a JSON string.
func (d *DeadLetters) Publish(ctx context.Context, queue, reason string, rowNum int, raw []byte) error {
	if !json.Valid(raw) {
		quoted, err := json.Marshal(string(raw))
		if err != nil {
			return err
		}
		raw = quoted
	}

	body, err := json.Marshal(DeadLetter{
		Queue:    queue,
		Reason:   reason,
		RowNum:   rowNum,
		Raw:      raw,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	if err := d.channel.Publish(ctx, d.Subject(queue), body); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	deadLettered.WithLabelValues(queue).Inc()
	return nil
}
