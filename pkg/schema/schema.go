// Package schema holds the static property table of a partition: the
// canonical identifiers, the bidirectional mapping between input names
// (ifl_processors) and controller names (ifl-processors), the mutability
// rule of every property and its value kind.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// PropertyID is the canonical identifier of a partition property.
type PropertyID int

// Kind is the value type a property is coerced to.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStringList
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindStringList:
		return "list of strings"
	case KindCrypto:
		return "crypto configuration"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Mutability is the coarse mutability class of a property.
type Mutability string

const (
	MutabilityReadOnly   Mutability = "read-only"
	MutabilityCreateOnly Mutability = "create-only"
	MutabilityUpdateOnly Mutability = "update-only"
	MutabilityAnytime    Mutability = "anytime"
	MutabilityArtificial Mutability = "artificial"
)

// DependentKind identifies a kind of resource that hangs off a partition or
// its CPC and is looked up by name.
type DependentKind string

const (
	DependentNIC             DependentKind = "nic"
	DependentHBA             DependentKind = "hba"
	DependentVirtualFunction DependentKind = "virtual-function"
	DependentStorageGroup    DependentKind = "storage-group"
	DependentAdapter         DependentKind = "adapter"
)

// Rule is the mutability rule of a property. It is one of ReadOnly,
// CreateOnly, UpdateOnly, Anytime or Artificial.
type Rule interface {
	Mutability() Mutability
	isRule()
}

// ReadOnly properties are reported by the controller and can never be set.
type ReadOnly struct {
	// Hint is appended to the rejection message when set.
	Hint string
}

// CreateOnly properties can only be set when the partition is created.
type CreateOnly struct{}

// UpdateOnly properties can only be set on an existing partition.
type UpdateOnly struct{}

// Anytime properties can be set at creation and on update.
type Anytime struct {
	// StoppedOnly marks properties the controller only accepts while the
	// partition is not active.
	StoppedOnly bool
}

// Artificial properties name a dependent resource. They are resolved to
// the dependent's URI and stored under Target.
type Artificial struct {
	Target    PropertyID
	Dependent DependentKind
}

func (ReadOnly) Mutability() Mutability   { return MutabilityReadOnly }
func (CreateOnly) Mutability() Mutability { return MutabilityCreateOnly }
func (UpdateOnly) Mutability() Mutability { return MutabilityUpdateOnly }
func (Anytime) Mutability() Mutability    { return MutabilityAnytime }
func (Artificial) Mutability() Mutability { return MutabilityArtificial }

func (ReadOnly) isRule()   {}
func (CreateOnly) isRule() {}
func (UpdateOnly) isRule() {}
func (Anytime) isRule()    {}
func (Artificial) isRule() {}

// Spec describes one property.
type Spec struct {
	ID PropertyID

	// Name is the controller name, e.g. "ifl-processors".
	Name string

	Kind Kind

	// Nullable properties accept an explicit null.
	Nullable bool

	Rule Rule
}

// InputName returns the request-side name, e.g. "ifl_processors".
func (s Spec) InputName() string {
	return strings.ReplaceAll(s.Name, "-", "_")
}

// SettableWhileActive reports whether the controller accepts the property
// on an active partition.
func (s Spec) SettableWhileActive() bool {
	if a, ok := s.Rule.(Anytime); ok {
		return !a.StoppedOnly
	}
	return true
}

var (
	byID   = make(map[PropertyID]Spec, len(table))
	byName = make(map[string]PropertyID, len(table))
)

func init() {
	for _, s := range table {
		if _, dup := byID[s.ID]; dup {
			panic(fmt.Sprintf("schema: duplicate property id %d (%s)", s.ID, s.Name))
		}
		key := normalize(s.Name)
		if _, dup := byName[key]; dup {
			panic(fmt.Sprintf("schema: duplicate property name %s", s.Name))
		}
		byID[s.ID] = s
		byName[key] = s.ID
	}
}

// normalize makes lookups separator-insensitive.
func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
}

// Lookup finds a property by its input or controller name.
func Lookup(name string) (Spec, bool) {
	id, ok := byName[normalize(name)]
	if !ok {
		return Spec{}, false
	}
	return byID[id], true
}

// Get returns the spec of a canonical identifier.
func Get(id PropertyID) (Spec, bool) {
	s, ok := byID[id]
	return s, ok
}

// MustGet returns the spec of a canonical identifier and panics if unknown.
func MustGet(id PropertyID) Spec {
	s, ok := byID[id]
	if !ok {
		panic(fmt.Sprintf("schema: unknown property id %d", id))
	}
	return s
}

// Name returns the controller name of a canonical identifier.
func (id PropertyID) Name() string {
	return MustGet(id).Name
}

func (id PropertyID) String() string {
	if s, ok := byID[id]; ok {
		return s.Name
	}
	return fmt.Sprintf("property(%d)", int(id))
}

// All returns every property spec sorted by controller name.
func All() []Spec {
	out := make([]Spec, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByMutability returns the specs with the given mutability, sorted by name.
func ByMutability(m Mutability) []Spec {
	var out []Spec
	for _, s := range All() {
		if s.Rule.Mutability() == m {
			out = append(out, s)
		}
	}
	return out
}
