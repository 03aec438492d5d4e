// Package etcdstore adapts an etcd v3 client to storage.Store, using a
// single-compare transaction for every CAS write — the same
// Txn/Compare/Then/Else idiom production etcd-backed locks use.
package etcdstore

import (
	"context"
	"errors"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kvlock/lockset/config"
	"github.com/kvlock/lockset/xerrors/stacktrace"

	"github.com/kvlock/lockset/storage"
)

const etcdConfigPath = "etcd"

type etcdConnectionConfig struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
}

// Connect builds an etcd client from cfg (read from the "etcd" config
// path), the same config.Configuration-driven bootstrap style
// messagebus.NewNatsConnection uses for storage/natsstore. The caller owns
// the returned client's lifecycle (Close).
func Connect(cfg *config.Configuration) (*clientv3.Client, error) {
	econf := etcdConnectionConfig{DialTimeout: 5 * time.Second}
	if err := cfg.Unmarshal(etcdConfigPath, &econf); err != nil {
		return nil, stacktrace.Wrap(err)
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   econf.Endpoints,
		DialTimeout: econf.DialTimeout,
		Username:    econf.Username,
		Password:    econf.Password,
	})
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	return client, nil
}

// Store adapts an *clientv3.Client to storage.Store. The zero value is not
// usable; construct with New.
type Store struct {
	client *clientv3.Client
}

// New wraps an already-connected etcd client. The caller owns the client's
// lifecycle (Close).
func New(client *clientv3.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) (storage.Value, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return storage.Value{}, classify(err)
	}
	if len(resp.Kvs) == 0 {
		return storage.Absent(), nil
	}
	val := string(resp.Kvs[0].Value)
	return storage.NewValue(val, val), nil
}

func (s *Store) PutIf(ctx context.Context, key, value string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	cmp := compareWitness(key, witness)
	txn := s.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, value))
	if returnNewOnFail {
		txn = txn.Else(clientv3.OpGet(key))
	}
	resp, err := txn.Commit()
	if err != nil {
		return false, storage.Value{}, classify(err)
	}
	if resp.Succeeded {
		return true, storage.NewValue(value, value), nil
	}
	return false, currentFromElse(resp, returnNewOnFail), nil
}

func (s *Store) DeleteIf(ctx context.Context, key string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	cmp := compareWitness(key, witness)
	txn := s.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpDelete(key))
	if returnNewOnFail {
		txn = txn.Else(clientv3.OpGet(key))
	}
	resp, err := txn.Commit()
	if err != nil {
		return false, storage.Value{}, classify(err)
	}
	if resp.Succeeded {
		return true, storage.Absent(), nil
	}
	return false, currentFromElse(resp, returnNewOnFail), nil
}

// compareWitness builds the single If() condition for a CAS write: byte
// equality against witness.Payload() when the key was last seen present,
// or "never created" (ModRevision == 0) when it was last seen absent.
func compareWitness(key string, witness storage.Value) clientv3.Cmp {
	if witness.Present() {
		return clientv3.Compare(clientv3.Value(key), "=", witness.Payload())
	}
	return clientv3.Compare(clientv3.ModRevision(key), "=", 0)
}

// currentFromElse extracts the Else(OpGet) response into a storage.Value,
// or the zero Value when the caller didn't ask for it.
func currentFromElse(resp *clientv3.TxnResponse, returnNewOnFail bool) storage.Value {
	if !returnNewOnFail || len(resp.Responses) == 0 {
		return storage.Value{}
	}
	kvs := resp.Responses[0].GetResponseRange().Kvs
	if len(kvs) == 0 {
		return storage.Absent()
	}
	val := string(kvs[0].Value)
	return storage.NewValue(val, val)
}

// classify wraps connectivity-class etcd/grpc errors with ErrUnavailable so
// the availability-retry wrapper treats them as transient; everything else
// propagates as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(storage.ErrUnavailable, err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
			return errors.Join(storage.ErrUnavailable, err)
		}
	}
	return err
}
