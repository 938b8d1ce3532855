package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu        sync.Mutex
	streamCfg jetstream.StreamConfig
	ensureErr error
	pubErr    error
	published map[string][][]byte
}

func (f *fakeStream) EnsureStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.streamCfg = cfg
	return nil, f.ensureErr
}

func (f *fakeStream) PublishToStream(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[subject] = append(f.published[subject], data)
	return nil
}

type countRecorder struct {
	ok, failed int
}

func (r *countRecorder) RecordEventPublished(_ string, ok bool) {
	if ok {
		r.ok++
	} else {
		r.failed++
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultStream, cfg.Stream)
	assert.Equal(t, DefaultSubjectPrefix, cfg.SubjectPrefix)

	bad := Config{MaxAgeStr: "forever"}
	assert.Error(t, bad.Validate())
}

func TestJetStreamPublisher_EnsuresStream(t *testing.T) {
	stream := &fakeStream{}
	cfg := Config{}
	require.NoError(t, cfg.Validate())

	_, err := NewJetStreamPublisher(context.Background(), stream, cfg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultStream, stream.streamCfg.Name)
	assert.Equal(t, []string{"postgraph.events.>"}, stream.streamCfg.Subjects)

	stream.ensureErr = errors.New("no jetstream")
	_, err = NewJetStreamPublisher(context.Background(), stream, cfg, nil, nil)
	assert.Error(t, err)
}

func TestJetStreamPublisher_Publish(t *testing.T) {
	stream := &fakeStream{}
	recorder := &countRecorder{}
	cfg := Config{}
	require.NoError(t, cfg.Validate())

	pub, err := NewJetStreamPublisher(context.Background(), stream, cfg, recorder, nil)
	require.NoError(t, err)

	event := New(PostCreated, "u1", "p1", map[string]any{"title": "hello"})
	require.NoError(t, pub.Publish(context.Background(), event))

	msgs := stream.published["postgraph.events.post.created"]
	require.Len(t, msgs, 1)

	var decoded Event
	require.NoError(t, json.Unmarshal(msgs[0], &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "u1", decoded.ActorID)
	assert.Equal(t, "p1", decoded.SubjectID)
	assert.Equal(t, "hello", decoded.Data["title"])
	assert.Equal(t, 1, recorder.ok)

	stream.pubErr = errors.New("nats down")
	assert.Error(t, pub.Publish(context.Background(), event))
	assert.Equal(t, 1, recorder.failed)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), New(PostDeleted, "", "p1", nil)))
}
