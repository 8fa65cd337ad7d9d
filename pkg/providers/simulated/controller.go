package simulated

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/partsync/pkg/engine"
	"github.com/openfroyo/partsync/pkg/schema"
	"github.com/openfroyo/partsync/pkg/telemetry"
)

var (
	// ErrLocked is returned while a partition is in a status transition.
	ErrLocked = errors.New("resource locked")

	// ErrNotFound is returned for unknown URIs.
	ErrNotFound = errors.New("not found")
)

// Call is one mutating call received by the controller.
type Call struct {
	Operation engine.OperationType
	URI       string
}

// Controller is an in-memory partition controller implementing
// engine.Directory and engine.Transport.
type Controller struct {
	mu         sync.RWMutex
	cpcs       map[string]*engine.CPC // by name
	partitions map[string]*engine.Partition
	dependents map[string]*StoredDependent
	calls      []Call
	failures   map[engine.OperationType]error

	// transition lock per partition URI, held while starting or stopping
	opMu   sync.Map
	timers map[string]*time.Timer

	transitionDelay time.Duration
	store           Store
	logger          *telemetry.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithTransitionDelay makes start and stop take d before the partition
// settles. The partition is locked in the meantime.
func WithTransitionDelay(d time.Duration) Option {
	return func(c *Controller) { c.transitionDelay = d }
}

// WithStore persists the controller state.
func WithStore(s Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller. When the store already holds state, that state
// is used and inv is ignored; otherwise the controller is seeded from inv.
func New(ctx context.Context, inv *Inventory, opts ...Option) (*Controller, error) {
	c := &Controller{
		cpcs:       make(map[string]*engine.CPC),
		partitions: make(map[string]*engine.Partition),
		dependents: make(map[string]*StoredDependent),
		failures:   make(map[engine.OperationType]error),
		timers:     make(map[string]*time.Timer),
		logger:     telemetry.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		state, err := c.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load simulator state: %w", err)
		}
		if state != nil {
			c.restore(state)
			c.logger.Debugf("restored %d partitions from state store", len(c.partitions))
			return c, nil
		}
	}

	if inv == nil {
		inv = &Inventory{}
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if err := c.seed(ctx, inv); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) restore(state *State) {
	for _, cpc := range state.CPCs {
		c.cpcs[cpc.Name] = cpc
	}
	for _, p := range state.Partitions {
		c.partitions[p.URI] = p
	}
	for _, d := range state.Dependents {
		c.dependents[d.Dependent.URI] = d
	}
}

func (c *Controller) seed(ctx context.Context, inv *Inventory) error {
	for _, spec := range inv.CPCs {
		dpm := true
		if spec.DPMEnabled != nil {
			dpm = *spec.DPMEnabled
		}
		cpc := &engine.CPC{Name: spec.Name, URI: "/api/cpcs/" + uuid.NewString(), DPMEnabled: dpm}
		c.cpcs[cpc.Name] = cpc
		if err := c.persistCPC(ctx, cpc); err != nil {
			return err
		}

		adapterURIs := make(map[string]string, len(spec.Adapters))
		for _, a := range spec.Adapters {
			d, err := c.addDependent(ctx, cpc.URI, schema.DependentAdapter, "/api/adapters/"+uuid.NewString(), a)
			if err != nil {
				return err
			}
			adapterURIs[a.Name] = d.URI
		}

		for _, ps := range spec.Partitions {
			if err := c.seedPartition(ctx, cpc, ps, adapterURIs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) seedPartition(ctx context.Context, cpc *engine.CPC, spec PartitionSpec, adapterURIs map[string]string) error {
	status := engine.PartitionStatus(spec.Status)
	if status == "" {
		status = engine.PartitionStatusStopped
	}
	p := c.newPartition(cpc, spec.Name, status)
	for k, v := range spec.Properties {
		p.Properties[k] = v
	}

	groups := []struct {
		kind  engine.DependentKind
		specs []DependentSpec
		path  string
		list  schema.PropertyID
	}{
		{schema.DependentNIC, spec.NICs, "/nics/", schema.PropNICURIs},
		{schema.DependentHBA, spec.HBAs, "/hbas/", schema.PropHBAURIs},
		{schema.DependentVirtualFunction, spec.VirtualFunctions, "/virtual-functions/", schema.PropVirtualFunctionURIs},
		{schema.DependentStorageGroup, spec.StorageGroups, "", schema.PropStorageGroupURIs},
	}
	for _, g := range groups {
		uris := make([]interface{}, 0, len(g.specs))
		for _, ds := range g.specs {
			uri := p.URI + g.path + uuid.NewString()
			if g.kind == schema.DependentStorageGroup {
				uri = "/api/storage-groups/" + uuid.NewString()
			}
			d, err := c.addDependent(ctx, p.URI, g.kind, uri, ds)
			if err != nil {
				return err
			}
			uris = append(uris, d.URI)
		}
		p.Properties[g.list.Name()] = uris
	}

	if spec.Crypto != nil {
		cc := &engine.CryptoConfiguration{AdapterURIs: []string{}, DomainConfigurations: []engine.DomainConfig{}}
		for _, name := range spec.Crypto.Adapters {
			cc.AdapterURIs = append(cc.AdapterURIs, adapterURIs[name])
		}
		for _, d := range spec.Crypto.Domains {
			cc.DomainConfigurations = append(cc.DomainConfigurations,
				engine.DomainConfig{DomainIndex: d.Index, AccessMode: d.AccessMode})
		}
		p.Properties[schema.PropCryptoConfiguration.Name()] = cc.Property()
	}

	c.partitions[p.URI] = p
	return c.persistPartition(ctx, p)
}

func (c *Controller) addDependent(ctx context.Context, parentURI string, kind engine.DependentKind, uri string, spec DependentSpec) (*engine.Dependent, error) {
	props := engine.Properties{}
	for k, v := range spec.Properties {
		props[k] = v
	}
	props["name"] = spec.Name
	props["element-uri"] = uri
	props["parent"] = parentURI
	props["class"] = string(kind)
	if spec.Type != "" {
		props["type"] = spec.Type
	}

	d := &StoredDependent{
		ParentURI: parentURI,
		Dependent: engine.Dependent{Kind: kind, Name: spec.Name, URI: uri, Properties: props},
	}
	c.dependents[uri] = d
	if c.store != nil {
		if err := c.store.SaveDependent(ctx, d); err != nil {
			return nil, fmt.Errorf("failed to persist %s %s: %w", kind, spec.Name, err)
		}
	}
	return &d.Dependent, nil
}

// newPartition returns a partition with the controller defaults.
func (c *Controller) newPartition(cpc *engine.CPC, name string, status engine.PartitionStatus) *engine.Partition {
	id := uuid.NewString()
	uri := "/api/partitions/" + id
	short := strings.ToUpper(name)
	if len(short) > 8 {
		short = short[:8]
	}
	return &engine.Partition{
		Name:   name,
		URI:    uri,
		CPCURI: cpc.URI,
		Status: status,
		Properties: engine.Properties{
			"name":                      name,
			"object-uri":                uri,
			"object-id":                 id,
			"parent":                    cpc.URI,
			"class":                     "partition",
			"status":                    string(status),
			"type":                      "linux",
			"description":               "",
			"short-name":                short,
			"autogenerate-partition-id": true,
			"processor-mode":            "shared",
			"ifl-processors":            1,
			"cp-processors":             0,
			"initial-memory":            1024,
			"maximum-memory":            1024,
			"boot-device":               "none",
			"crypto-configuration":      nil,
			"nic-uris":                  []interface{}{},
			"hba-uris":                  []interface{}{},
			"virtual-function-uris":     []interface{}{},
			"storage-group-uris":        []interface{}{},
			"has-unacceptable-status":   false,
			"is-locked":                 false,
		},
	}
}

// FindCPC implements engine.Directory.
func (c *Controller) FindCPC(ctx context.Context, name string) (*engine.CPC, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cpc, ok := c.cpcs[name]
	if !ok {
		return nil, nil
	}
	out := *cpc
	return &out, nil
}

// FindPartition implements engine.Directory.
func (c *Controller) FindPartition(ctx context.Context, cpc *engine.CPC, name string) (*engine.Partition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.partitions {
		if p.CPCURI == cpc.URI && p.Name == name {
			return clonePartition(p), nil
		}
	}
	return nil, nil
}

// FindDependents implements engine.Directory.
func (c *Controller) FindDependents(ctx context.Context, scopeURI string, kind engine.DependentKind, name string) ([]engine.Dependent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []engine.Dependent
	for _, d := range c.dependents {
		if d.ParentURI == scopeURI && d.Dependent.Kind == kind && d.Dependent.Name == name {
			out = append(out, cloneDependent(d.Dependent))
		}
	}
	return out, nil
}

// GetPartition implements engine.Transport. It returns nil for an unknown URI.
func (c *Controller) GetPartition(ctx context.Context, uri string) (*engine.Partition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.partitions[uri]
	if !ok {
		return nil, nil
	}
	return clonePartition(p), nil
}

// CreatePartition implements engine.Transport.
func (c *Controller) CreatePartition(ctx context.Context, cpc *engine.CPC, props engine.Properties) (*engine.Partition, error) {
	name, _ := props["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("HTTP 400: create partition requires a name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(engine.OperationCreate); err != nil {
		return nil, err
	}
	stored, ok := c.cpcs[cpc.Name]
	if !ok || stored.URI != cpc.URI {
		return nil, fmt.Errorf("HTTP 404: CPC %s: %w", cpc.Name, ErrNotFound)
	}
	for _, p := range c.partitions {
		if p.CPCURI == cpc.URI && p.Name == name {
			return nil, fmt.Errorf("HTTP 409: partition %s already exists in CPC %s", name, cpc.Name)
		}
	}

	p := c.newPartition(stored, name, engine.PartitionStatusStopped)
	for k, v := range props {
		p.Properties[k] = copyValue(v)
	}
	c.partitions[p.URI] = p
	c.calls = append(c.calls, Call{Operation: engine.OperationCreate, URI: p.URI})
	if err := c.persistPartition(ctx, p); err != nil {
		return nil, err
	}
	c.logger.Debugf("created partition %s", name)
	return clonePartition(p), nil
}

// UpdatePartition implements engine.Transport. Properties that can only be
// changed on a stopped partition are rejected while it is active.
func (c *Controller) UpdatePartition(ctx context.Context, uri string, props engine.Properties) error {
	return c.withPartition(ctx, uri, engine.OperationUpdate, func(p *engine.Partition) error {
		if p.Status.Class() == engine.StatusClassActive {
			for name := range props {
				if spec, ok := schema.Lookup(name); ok && !spec.SettableWhileActive() {
					return fmt.Errorf("HTTP 409: property %s of partition %s cannot be changed while the partition is %s",
						name, p.Name, p.Status)
				}
			}
		}
		if _, ok := props[schema.PropType.Name()]; ok {
			return fmt.Errorf("HTTP 400: property type of partition %s cannot be changed", p.Name)
		}
		for k, v := range props {
			p.Properties[k] = copyValue(v)
		}
		if name, ok := props["name"].(string); ok && name != "" {
			p.Name = name
		}
		return nil
	})
}

// StartPartition implements engine.Transport.
func (c *Controller) StartPartition(ctx context.Context, uri string) error {
	return c.transition(ctx, uri, engine.OperationStart,
		engine.StatusClassStopped, engine.PartitionStatusStarting, engine.PartitionStatusActive)
}

// StopPartition implements engine.Transport.
func (c *Controller) StopPartition(ctx context.Context, uri string) error {
	return c.transition(ctx, uri, engine.OperationStop,
		engine.StatusClassActive, engine.PartitionStatusStopping, engine.PartitionStatusStopped)
}

// DeletePartition implements engine.Transport. Only stopped partitions can
// be deleted.
func (c *Controller) DeletePartition(ctx context.Context, uri string) error {
	lock := c.lockFor(uri)
	if !lock.TryLock() {
		return fmt.Errorf("HTTP 409: partition %s: %w", uri, ErrLocked)
	}
	defer lock.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(engine.OperationDelete); err != nil {
		return err
	}
	p, ok := c.partitions[uri]
	if !ok {
		return fmt.Errorf("HTTP 404: partition %s: %w", uri, ErrNotFound)
	}
	if p.Status.Class() != engine.StatusClassStopped {
		return fmt.Errorf("HTTP 409: partition %s must be stopped to be deleted, status is %s", p.Name, p.Status)
	}

	delete(c.partitions, uri)
	for key, d := range c.dependents {
		if d.ParentURI == uri {
			delete(c.dependents, key)
		}
	}
	c.calls = append(c.calls, Call{Operation: engine.OperationDelete, URI: uri})
	if c.store != nil {
		if err := c.store.DeletePartition(ctx, uri); err != nil {
			return fmt.Errorf("failed to persist deletion of %s: %w", p.Name, err)
		}
	}
	c.logger.Debugf("deleted partition %s", p.Name)
	return nil
}

// ListDependents implements engine.Transport.
func (c *Controller) ListDependents(ctx context.Context, partitionURI string, kind engine.DependentKind) ([]engine.Dependent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.partitions[partitionURI]; !ok {
		return nil, fmt.Errorf("HTTP 404: partition %s: %w", partitionURI, ErrNotFound)
	}
	out := []engine.Dependent{}
	for _, d := range c.dependents {
		if d.ParentURI == partitionURI && d.Dependent.Kind == kind {
			out = append(out, cloneDependent(d.Dependent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetDependent implements engine.Transport.
func (c *Controller) GetDependent(ctx context.Context, kind engine.DependentKind, uri string) (*engine.Dependent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dependents[uri]
	if !ok || d.Dependent.Kind != kind {
		return nil, fmt.Errorf("HTTP 404: %s %s: %w", kind, uri, ErrNotFound)
	}
	out := cloneDependent(d.Dependent)
	return &out, nil
}

// FailNext makes the next call of op fail with err.
func (c *Controller) FailNext(op engine.OperationType, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

// Calls returns the mutating calls received so far.
func (c *Controller) Calls() []Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// ResetCalls forgets the recorded calls.
func (c *Controller) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Close stops pending transitions and closes the store.
func (c *Controller) Close() error {
	c.mu.Lock()
	for uri, t := range c.timers {
		t.Stop()
		delete(c.timers, uri)
	}
	c.mu.Unlock()
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// withPartition runs fn on the stored partition under the transition lock
// and persists the result.
func (c *Controller) withPartition(ctx context.Context, uri string, op engine.OperationType, fn func(*engine.Partition) error) error {
	lock := c.lockFor(uri)
	if !lock.TryLock() {
		return fmt.Errorf("HTTP 409: partition %s: %w", uri, ErrLocked)
	}
	defer lock.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(op); err != nil {
		return err
	}
	p, ok := c.partitions[uri]
	if !ok {
		return fmt.Errorf("HTTP 404: partition %s: %w", uri, ErrNotFound)
	}
	if err := fn(p); err != nil {
		return err
	}
	c.calls = append(c.calls, Call{Operation: op, URI: uri})
	return c.persistPartition(ctx, p)
}

// transition moves a partition from the from class through an intermediate
// status to the final status. With a transition delay the partition stays
// locked in the intermediate status until the delay elapses.
func (c *Controller) transition(ctx context.Context, uri string, op engine.OperationType, from engine.StatusClass, via, to engine.PartitionStatus) error {
	lock := c.lockFor(uri)
	if !lock.TryLock() {
		return fmt.Errorf("HTTP 409: partition %s: %w", uri, ErrLocked)
	}

	c.mu.Lock()
	if err := c.takeFailure(op); err != nil {
		c.mu.Unlock()
		lock.Unlock()
		return err
	}
	p, ok := c.partitions[uri]
	if !ok {
		c.mu.Unlock()
		lock.Unlock()
		return fmt.Errorf("HTTP 404: partition %s: %w", uri, ErrNotFound)
	}
	if p.Status.Class() != from {
		status := p.Status
		c.mu.Unlock()
		lock.Unlock()
		return fmt.Errorf("HTTP 409: cannot %s partition %s in status %s", op, p.Name, status)
	}
	c.calls = append(c.calls, Call{Operation: op, URI: uri})

	if c.transitionDelay <= 0 {
		setStatus(p, to)
		err := c.persistPartition(ctx, p)
		c.mu.Unlock()
		lock.Unlock()
		return err
	}

	setStatus(p, via)
	err := c.persistPartition(ctx, p)
	c.timers[uri] = time.AfterFunc(c.transitionDelay, func() {
		defer lock.Unlock()
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.timers, uri)
		if cur, ok := c.partitions[uri]; ok {
			setStatus(cur, to)
			if perr := c.persistPartition(context.Background(), cur); perr != nil {
				c.logger.WithError(perr).Warnf("failed to persist status of %s", cur.Name)
			}
		}
	})
	c.mu.Unlock()
	return err
}

func (c *Controller) lockFor(uri string) *sync.Mutex {
	v, _ := c.opMu.LoadOrStore(uri, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// takeFailure returns and clears an injected failure. c.mu must be held.
func (c *Controller) takeFailure(op engine.OperationType) error {
	err, ok := c.failures[op]
	if !ok {
		return nil
	}
	delete(c.failures, op)
	return err
}

func (c *Controller) persistCPC(ctx context.Context, cpc *engine.CPC) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveCPC(ctx, cpc); err != nil {
		return fmt.Errorf("failed to persist CPC %s: %w", cpc.Name, err)
	}
	return nil
}

func (c *Controller) persistPartition(ctx context.Context, p *engine.Partition) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SavePartition(ctx, p); err != nil {
		return fmt.Errorf("failed to persist partition %s: %w", p.Name, err)
	}
	return nil
}

func setStatus(p *engine.Partition, s engine.PartitionStatus) {
	p.Status = s
	p.Properties["status"] = string(s)
}

func clonePartition(p *engine.Partition) *engine.Partition {
	out := *p
	out.Properties = make(engine.Properties, len(p.Properties))
	for k, v := range p.Properties {
		out.Properties[k] = copyValue(v)
	}
	return &out
}

func cloneDependent(d engine.Dependent) engine.Dependent {
	out := d
	out.Properties = make(engine.Properties, len(d.Properties))
	for k, v := range d.Properties {
		out.Properties[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies maps and slices so callers never share state with
// the controller.
func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case engine.Properties:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
