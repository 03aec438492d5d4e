package natsstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvlock/lockset/config"
	"github.com/kvlock/lockset/messagebus"
	"github.com/kvlock/lockset/storage"
	"github.com/kvlock/lockset/storage/natsstore"
)

// newBucket spins up the teacher's in-process embedded NATS server (no
// listening socket, no external dependency) with JetStream enabled, and
// returns a fresh KV bucket backing a natsstore.Store.
func newBucket(t *testing.T) jetstream.KeyValue {
	t.Helper()

	cfg, err := config.NewConfigurationFromMap(map[string]any{
		"listenport":        0,
		"jetstreamdisabled": false,
	})
	require.NoError(t, err)

	srv, err := messagebus.NewNatsEmbeddedServer(cfg, "")
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	nc, err := srv.NewConnection()
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: "lockset-test"})
	require.NoError(t, err)
	return kv
}

func TestNatsStoreGetAbsent(t *testing.T) {
	s := natsstore.New(newBucket(t))
	v, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, v.Present())
}

func TestNatsStoreCreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := natsstore.New(newBucket(t))

	ok, v, err := s.PutIf(ctx, "k", "v1", storage.Absent(), false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v.Payload())

	ok, v2, err := s.PutIf(ctx, "k", "v2", v, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", v2.Payload())

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Payload())
}

func TestNatsStoreCreateFailsWhenKeyExists(t *testing.T) {
	ctx := context.Background()
	s := natsstore.New(newBucket(t))

	_, _, err := s.PutIf(ctx, "k", "v1", storage.Absent(), false)
	require.NoError(t, err)

	ok, current, err := s.PutIf(ctx, "k", "v2", storage.Absent(), true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "v1", current.Payload())
}

func TestNatsStoreUpdateWithStaleRevisionFails(t *testing.T) {
	ctx := context.Background()
	s := natsstore.New(newBucket(t))

	_, v, err := s.PutIf(ctx, "k", "v1", storage.Absent(), false)
	require.NoError(t, err)

	_, _, err = s.PutIf(ctx, "k", "v2", v, false)
	require.NoError(t, err)

	ok, current, err := s.PutIf(ctx, "k", "v3", v, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "v2", current.Payload())
}

func TestNatsStoreDeleteIfRequiresMatchingRevision(t *testing.T) {
	ctx := context.Background()
	s := natsstore.New(newBucket(t))

	_, v, err := s.PutIf(ctx, "k", "v1", storage.Absent(), false)
	require.NoError(t, err)

	ok, _, err := s.DeleteIf(ctx, "k", v, false)
	require.NoError(t, err)
	assert.True(t, ok)

	final, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, final.Present())
}
