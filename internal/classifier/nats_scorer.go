package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultScoreSubject = "fraud.score"

type scoreRequest struct {
	Features []float64 `json:"features"`
}

type scoreResponse struct {
	Probability float64 `json:"probability"`
	Error       string  `json:"error,omitempty"`
}

// NATSScorer delegates scoring to a model-serving process over NATS
// request/reply.
type NATSScorer struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func NewNATSScorer(nc *nats.Conn, subject string, timeout time.Duration) *NATSScorer {
	if subject == "" {
		subject = DefaultScoreSubject
	}
	return &NATSScorer{nc: nc, subject: subject, timeout: timeout}
}

func (s *NATSScorer) Score(ctx context.Context, features []float64) (float64, error) {
	payload, err := json.Marshal(scoreRequest{Features: features})
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.nc.RequestWithContext(ctx, s.subject, payload)
	if err != nil {
		return 0, fmt.Errorf("score request on %s: %w", s.subject, err)
	}

	var resp scoreResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return 0, fmt.Errorf("decode score response: %w", err)
	}
	if resp.Error != "" {
		return 0, errors.New(resp.Error)
	}
	return resp.Probability, nil
}

// Serve answers score requests on subject with scorer. It lets a process
// holding the model artifact act as the remote end of a NATSScorer.
func Serve(nc *nats.Conn, subject string, scorer Scorer) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultScoreSubject
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var req scoreRequest
		var resp scoreResponse
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			resp.Error = "invalid score request: " + err.Error()
		} else if p, err := scorer.Score(context.Background(), req.Features); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Probability = p
		}

		data, _ := json.Marshal(resp)
		_ = msg.Respond(data)
	})
}
