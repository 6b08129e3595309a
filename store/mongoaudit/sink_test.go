package mongoaudit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/BaSui01/flowagent/agent"
)

type fakeCollection struct {
	mu       sync.Mutex
	docs     []Document
	err      error
	deadline bool
}

func (f *fakeCollection) InsertOne(ctx context.Context, document any, _ ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, document.(Document))
	return &mongo.InsertOneResult{}, nil
}

func TestSink_RecordAction(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{}
	sink := NewSink(coll, time.Second, nil)
	session := agent.Session{ID: "s1", AgentID: "a1", ProjectID: "p1"}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := sink.RecordAction(context.Background(), session, agent.ActionRecord{
		Sequence:  2,
		Type:      agent.ActionToolCall,
		ToolName:  "lookup",
		ToolInput: json.RawMessage(`{"q":1}`),
		Success:   true,
		Duration:  250 * time.Millisecond,
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.Len(t, coll.docs, 1)
	assert.True(t, coll.deadline)

	doc := coll.docs[0]
	assert.Equal(t, "s1", doc.SessionID)
	assert.Equal(t, "a1", doc.AgentID)
	assert.Equal(t, 2, doc.Sequence)
	assert.Equal(t, "tool_call", doc.Type)
	assert.Equal(t, `{"q":1}`, doc.ToolInput)
	assert.Equal(t, int64(250), doc.DurationMs)
	assert.Equal(t, ts, doc.Timestamp)
}

func TestSink_WrapsInsertError(t *testing.T) {
	t.Parallel()

	sink := NewSink(&fakeCollection{err: errors.New("not primary")}, 0, nil)
	err := sink.RecordAction(context.Background(), agent.Session{ID: "s1"}, agent.ActionRecord{Sequence: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s1/1")
	assert.Contains(t, err.Error(), "not primary")
}

func TestTee_RunsEverySink(t *testing.T) {
	t.Parallel()

	ok := &fakeCollection{}
	bad := &fakeCollection{err: errors.New("down")}
	tee := Tee{NewSink(bad, 0, nil), nil, NewSink(ok, 0, nil)}

	err := tee.RecordAction(context.Background(), agent.Session{ID: "s"}, agent.ActionRecord{Sequence: 1})
	assert.Error(t, err)
	assert.Len(t, ok.docs, 1)
}
