package guard

import (
	"sync"

	goSession "github.com/MrEthical07/goSession"
)

// SnapshotSource provides the current session state.
type SnapshotSource interface {
	Snapshot() goSession.Snapshot
}

// Source is a [SnapshotSource] that also reports transitions. [*goSession.Manager] implements it.
type Source interface {
	SnapshotSource
	Subscribe(fn goSession.Listener) (cancel func())
}

// Navigator keeps a routing decision current for one viewer. It re-evaluates on every session
// event and every call to Navigate, and calls onChange whenever the decision differs from the
// previous one. onChange may call Navigate, typically to follow a redirect.
type Navigator struct {
	routes   Routes
	source   Source
	onChange func(path string, d Decision)

	mu         sync.Mutex
	path       string
	snap       goSession.Snapshot
	decision   Decision
	evaluated  bool
	pending    []change
	delivering bool
	closed     bool
	cancel     func()
}

type change struct {
	path     string
	decision Decision
}

// NewNavigator starts at path and evaluates it immediately.
func NewNavigator(source Source, routes Routes, path string, onChange func(path string, d Decision)) *Navigator {
	n := &Navigator{
		routes:   routes,
		source:   source,
		onChange: onChange,
		path:     path,
		snap:     source.Snapshot(),
	}
	n.cancel = source.Subscribe(func(ev goSession.Event) {
		n.observe(ev.Snapshot)
	})
	n.observe(source.Snapshot())
	return n
}

// Navigate moves to path and returns its decision.
func (n *Navigator) Navigate(path string) Decision {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
	return n.observe(n.source.Snapshot())
}

// Decision returns the current decision.
func (n *Navigator) Decision() Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.decision
}

// Path returns the current path.
func (n *Navigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Close stops following session events.
func (n *Navigator) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	cancel := n.cancel
	n.mu.Unlock()
	cancel()
}

// observe applies snap unless a newer snapshot was already seen, re-evaluates and delivers
// decision changes in order.
func (n *Navigator) observe(snap goSession.Snapshot) Decision {
	n.mu.Lock()
	if n.closed {
		d := n.decision
		n.mu.Unlock()
		return d
	}
	if snap.Version >= n.snap.Version {
		n.snap = snap
	}
	d := n.routes.Decide(n.snap.Status, n.path, n.snap.Roles())
	if !n.evaluated || d != n.decision {
		n.evaluated = true
		n.decision = d
		if n.onChange != nil {
			n.pending = append(n.pending, change{path: n.path, decision: d})
		}
	}
	n.mu.Unlock()

	n.flush()
	return d
}

func (n *Navigator) flush() {
	n.mu.Lock()
	if n.delivering {
		n.mu.Unlock()
		return
	}
	n.delivering = true
	for len(n.pending) > 0 {
		c := n.pending[0]
		n.pending = n.pending[1:]
		n.mu.Unlock()

		n.onChange(c.path, c.decision)

		n.mu.Lock()
	}
	n.delivering = false
	n.mu.Unlock()
}
