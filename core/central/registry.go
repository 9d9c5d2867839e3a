package central

// Kind classifies a protocol peer.
type Kind string

const (
	KindCP      Kind = "CP"
	KindDriver  Kind = "DRIVER"
	KindMonitor Kind = "MONITOR"
)

type binding struct {
	entity string
	kind   Kind
}

// connRegistry holds the invertible entity<->connection bindings. It is the
// single source of truth for "is this entity currently reachable". All
// methods are called with the server's aggregate lock held.
type connRegistry struct {
	byEntity map[string]int64
	byConn   map[int64]binding
}

func newConnRegistry() connRegistry {
	return connRegistry{
		byEntity: make(map[string]int64),
		byConn:   make(map[int64]binding),
	}
}

// bind records the entity behind a connection. A new binding for an entity
// supersedes any prior one: the stale connection keeps its reverse mapping
// until its own read loop terminates and cleans it up.
func (r *connRegistry) bind(entity string, kind Kind, connID int64) {
	r.byEntity[entity] = connID
	r.byConn[connID] = binding{entity: entity, kind: kind}
}

// unbind removes a connection's bindings. It is the sole cleanup entry
// point when a read loop terminates and is safe to call for connections
// that never registered. current reports whether the connection was still
// the entity's live binding; a superseded socket is not.
func (r *connRegistry) unbind(connID int64) (b binding, current, ok bool) {
	b, ok = r.byConn[connID]
	if !ok {
		return binding{}, false, false
	}
	delete(r.byConn, connID)
	if r.byEntity[b.entity] == connID {
		delete(r.byEntity, b.entity)
		current = true
	}
	return b, current, true
}

// connFor returns the live connection id for an entity.
func (r *connRegistry) connFor(entity string) (int64, bool) {
	id, ok := r.byEntity[entity]
	return id, ok
}

// bindingFor returns the entity and kind behind a connection.
func (r *connRegistry) bindingFor(connID int64) (binding, bool) {
	b, ok := r.byConn[connID]
	return b, ok
}
