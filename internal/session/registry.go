package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ulift/internal/pipeline"
	"ulift/internal/roster"
	"ulift/internal/widgets"
)

// Instance is the server-side state of one browser: its registration form,
// the pipeline submitting it and an optional chat listener.
type Instance struct {
	ID       string
	Form     *widgets.Form
	ChatForm *widgets.Form
	Pipeline *pipeline.Pipeline

	mu        sync.Mutex
	listener  *roster.Listener
	chatName  string
	navigated atomic.Bool
	lastSeen  atomic.Int64
}

// NewInstance wires a registration form into a pipeline built from opts.
// The instance is the pipeline's view target and navigator.
func NewInstance(id string, opts pipeline.Options) *Instance {
	inst := &Instance{
		ID:       id,
		Form:     widgets.NewRegistrationForm(),
		ChatForm: widgets.NewChatLoginForm(),
	}
	opts.View = inst.Form
	opts.Navigator = inst
	if opts.Logger != nil {
		opts.Logger = opts.Logger.With(zap.String("instance", id))
	}
	inst.Pipeline = pipeline.New(opts)
	inst.touch(time.Now())
	return inst
}

// NavigateToLogin records that the next response should move to the login page.
func (i *Instance) NavigateToLogin() { i.navigated.Store(true) }

// TakeNavigation reports and clears a pending navigation.
func (i *Instance) TakeNavigation() bool { return i.navigated.Swap(false) }

// Listener returns the chat listener, creating it with open on first use.
func (i *Instance) Listener(open func() *roster.Listener) *roster.Listener {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil && open != nil {
		i.listener = open()
	}
	return i.listener
}

// SetChatName remembers the name the instance logged into the chat with.
func (i *Instance) SetChatName(name string) {
	i.mu.Lock()
	i.chatName = name
	i.mu.Unlock()
}

// ChatName is the name last used to log into the chat.
func (i *Instance) ChatName() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.chatName
}

// Roster returns the users online as seen by this instance's listener.
func (i *Instance) Roster() []string {
	i.mu.Lock()
	l := i.listener
	i.mu.Unlock()
	if l == nil {
		return []string{}
	}
	return l.State().Snapshot()
}

// Close releases the chat listener.
func (i *Instance) Close() error {
	i.mu.Lock()
	l := i.listener
	i.listener = nil
	i.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Close()
}

func (i *Instance) touch(now time.Time) { i.lastSeen.Store(now.UnixNano()) }

func (i *Instance) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, i.lastSeen.Load()))
}

// Registry keeps live instances by id and drops the idle ones.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance
	ttl       time.Duration
	build     func(id string) *Instance
	log       *zap.Logger
	now       func() time.Time
	onSize    func(int)
}

// RegistryOptions configures a Registry. Build creates the instance for a new id.
type RegistryOptions struct {
	IdleTTL time.Duration
	Build   func(id string) *Instance
	Logger  *zap.Logger
	// OnSize is called with the number of live instances after each change.
	OnSize func(int)
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		instances: make(map[string]*Instance),
		ttl:       ttl,
		build:     opts.Build,
		log:       log,
		now:       time.Now,
		onSize:    opts.OnSize,
	}
}

// Get returns the instance for id, creating it on first sight.
func (r *Registry) Get(id string) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		inst = r.build(id)
		r.instances[id] = inst
		r.reportSize()
	}
	inst.touch(r.now())
	return inst
}

// Sweep closes and forgets instances idle for longer than the TTL. An
// instance with a submission in flight is kept.
func (r *Registry) Sweep() int {
	now := r.now()
	var idle []*Instance

	r.mu.Lock()
	for id, inst := range r.instances {
		if inst.idleSince(now) < r.ttl || inst.Pipeline.InFlight() {
			continue
		}
		delete(r.instances, id)
		idle = append(idle, inst)
	}
	if len(idle) > 0 {
		r.reportSize()
	}
	r.mu.Unlock()

	for _, inst := range idle {
		if err := inst.Close(); err != nil {
			r.log.Warn("closing idle instance", zap.String("instance", inst.ID), zap.Error(err))
		}
	}
	if len(idle) > 0 {
		r.log.Debug("swept idle instances", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Close closes every instance and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	all := r.instances
	r.instances = make(map[string]*Instance)
	r.reportSize()
	r.mu.Unlock()

	var errs []error
	for _, inst := range all {
		if err := inst.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) reportSize() {
	if r.onSize != nil {
		r.onSize(len(r.instances))
	}
}
