// Package mongoaudit mirrors agent action records into a MongoDB collection.
package mongoaudit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/config"
)

// Document is the stored shape of one action record.
type Document struct {
	SessionID    string    `bson:"session_id"`
	AgentID      string    `bson:"agent_id"`
	ProjectID    string    `bson:"project_id"`
	Sequence     int       `bson:"sequence"`
	Type         string    `bson:"type"`
	ToolName     string    `bson:"tool_name,omitempty"`
	ToolInput    string    `bson:"tool_input,omitempty"`
	ToolOutput   string    `bson:"tool_output,omitempty"`
	Success      bool      `bson:"success"`
	Error        string    `bson:"error,omitempty"`
	DurationMs   int64     `bson:"duration_ms"`
	InputTokens  int       `bson:"input_tokens,omitempty"`
	OutputTokens int       `bson:"output_tokens,omitempty"`
	CostUSD      float64   `bson:"cost_usd,omitempty"`
	Timestamp    time.Time `bson:"timestamp"`
}

// Inserter is the part of *mongo.Collection the sink writes through.
type Inserter interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
}

// Sink implements agent.AuditSink on a MongoDB collection.
type Sink struct {
	coll    Inserter
	timeout time.Duration
	logger  *zap.Logger
}

// NewSink writes through coll, bounding each insert by timeout.
func NewSink(coll Inserter, timeout time.Duration, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sink{coll: coll, timeout: timeout, logger: logger.With(zap.String("component", "mongo_audit"))}
}

// Connect opens a client from config, ensures the session/sequence index and
// returns the sink with a close function for the client.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Sink, func(context.Context) error, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	idxCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	_, err = coll.Indexes().CreateOne(idxCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("create audit index: %w", err)
	}
	return NewSink(coll, cfg.Timeout, logger), client.Disconnect, nil
}

// RecordAction inserts one action document.
func (s *Sink) RecordAction(ctx context.Context, session agent.Session, rec agent.ActionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.coll.InsertOne(ctx, documentFrom(session, rec)); err != nil {
		return fmt.Errorf("insert action %s/%d: %w", session.ID, rec.Sequence, err)
	}
	return nil
}

func documentFrom(session agent.Session, rec agent.ActionRecord) Document {
	sessionID := rec.SessionID
	if sessionID == "" {
		sessionID = session.ID
	}
	return Document{
		SessionID:    sessionID,
		AgentID:      session.AgentID,
		ProjectID:    session.ProjectID,
		Sequence:     rec.Sequence,
		Type:         string(rec.Type),
		ToolName:     rec.ToolName,
		ToolInput:    string(rec.ToolInput),
		ToolOutput:   rec.ToolOutput,
		Success:      rec.Success,
		Error:        rec.Error,
		DurationMs:   rec.Duration.Milliseconds(),
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		CostUSD:      rec.CostUSD,
		Timestamp:    rec.Timestamp,
	}
}

// Tee fans one action out to several sinks and returns the first error
// after all of them ran.
type Tee []agent.AuditSink

func (t Tee) RecordAction(ctx context.Context, session agent.Session, rec agent.ActionRecord) error {
	var first error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.RecordAction(ctx, session, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
