// etcd-backed implementation of the Registry interface.
//
// etcd acts as a "phonebook" of live host-application sessions:
//
//	Key:   /dcclink/{app}/{addr}
//	Value: JSON-encoded Instance
//
// Registration uses TTL-based leases: if a host application crashes without
// deregistering, the lease expires and the entry disappears on its own,
// preventing ghost sessions.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"

	"dcclink/dcc"
)

const keyPrefix = "/dcclink/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register announces the instance under a TTL lease and starts background
// lease renewal. The lease id stays a local variable: storing it on the
// struct races when several servers share one registry.
func (r *EtcdRegistry) Register(app dcc.App, instance Instance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+string(app)+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume keepalive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes an instance. Called during graceful shutdown before the
// listener closes.
func (r *EtcdRegistry) Deregister(app dcc.App, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+string(app)+"/"+addr)
	return err
}

// Watch monitors an app prefix and emits the refreshed instance list on any
// change (registration, deregistration, lease expiry). Server-push via etcd's
// Watch API, cheaper than polling.
func (r *EtcdRegistry) Watch(app dcc.App) <-chan []Instance {
	ch := make(chan []Instance, 1)
	prefix := keyPrefix + string(app) + "/"

	go func() {
		watchChan := r.client.Watch(context.TODO(), prefix, clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change; simpler than
			// replaying individual watch events.
			instances, _ := r.Discover(app)
			ch <- instances
		}
	}()

	return ch
}

// Discover returns every live instance registered for app.
func (r *EtcdRegistry) Discover(app dcc.App) ([]Instance, error) {
	prefix := keyPrefix + string(app) + "/"

	resp, err := r.client.Get(context.TODO(), prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0)
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
