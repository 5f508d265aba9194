package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/peerwire/v1/peers/"

// Etcd stores records as JSON values under /peerwire/v1/peers/<host:port>.
type Etcd struct{ client *clientv3.Client }

// DialEtcd connects to the cluster at endpoints.
func DialEtcd(endpoints []string) (*Etcd, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "etcd dial")
	}

	return &Etcd{client: client}, nil
}

// Lookup a record
func (e *Etcd) Lookup(c context.Context, addr string, port int) (Record, bool, error) {
	resp, err := e.client.Get(c, etcdPrefix+Key(addr, port))
	if err != nil {
		return Record{}, false, errors.Wrap(err, "etcd get")
	}

	if len(resp.Kvs) == 0 {
		return Record{}, false, nil
	}

	var r Record
	if err = json.Unmarshal(resp.Kvs[0].Value, &r); err != nil {
		return Record{}, false, errors.Wrap(err, "etcd decode")
	}

	return r, true, nil
}

// Upsert a record
func (e *Etcd) Upsert(c context.Context, r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "etcd encode")
	}

	_, err = e.client.Put(c, etcdPrefix+r.Key(), string(b))
	return errors.Wrap(err, "etcd put")
}

// Close the client
func (e *Etcd) Close() error { return e.client.Close() }
