package ksync

// Mutex is a reentrant lock over a Sema. The owner is identified by a
// stable handle supplied by the caller (ata.Channel passes a pointer to a
// per-command token) rather than a goroutine ID, since Go does not expose
// one.
type Mutex struct {
	sema  *Sema
	guard Sema // protects owner/depth

	owner interface{}
	depth int
}

// NewMutex returns an unlocked reentrant mutex.
func NewMutex() *Mutex {
	return &Mutex{
		sema: NewSema(1),
	}
}

// Acquire locks m for owner. A second Acquire by the same owner increments
// the recursion depth instead of blocking.
func (m *Mutex) Acquire(owner interface{}) {
	m.guard.mu.Lock()
	if m.owner == owner && m.depth > 0 {
		m.depth++
		m.guard.mu.Unlock()
		return
	}
	m.guard.mu.Unlock()

	m.sema.Down()

	m.guard.mu.Lock()
	m.owner = owner
	m.depth = 1
	m.guard.mu.Unlock()
}

// Release unlocks one level of recursion. It panics if owner does not hold
// the mutex, mirroring the kernel assertion in the original source.
func (m *Mutex) Release(owner interface{}) {
	m.guard.mu.Lock()
	if m.owner != owner || m.depth == 0 {
		m.guard.mu.Unlock()
		panic("ksync: Release by non-owner")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = nil
		m.guard.mu.Unlock()
		m.sema.Up()
		return
	}
	m.guard.mu.Unlock()
}

// HeldBy reports whether owner currently holds m, for assertions and
// tests.
func (m *Mutex) HeldBy(owner interface{}) bool {
	m.guard.mu.Lock()
	defer m.guard.mu.Unlock()
	return m.owner == owner && m.depth > 0
}
