package engine

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/openfroyo/partsync/pkg/schema"
)

// PropertyDiff is the outcome of comparing resolved properties with a snapshot.
type PropertyDiff struct {
	// Payload holds only the properties whose value differs, keyed by
	// controller name. For an absent partition it holds every property.
	Payload Properties

	// Changes describes each entry of Payload.
	Changes []Change

	// CryptoChanged reports whether the crypto configuration differs.
	CryptoChanged bool

	// RequiresStop reports whether a changed property is not settable while
	// the partition is active.
	RequiresStop bool
}

// HasChanges reports whether anything differs.
func (d *PropertyDiff) HasChanges() bool {
	return len(d.Payload) > 0
}

// ComputeDiff compares resolved properties with the current partition.
// current is nil when the partition does not exist.
func ComputeDiff(resolved *ResolvedProperties, current *Partition) (*PropertyDiff, error) {
	diff := &PropertyDiff{Payload: make(Properties)}

	var currentProps Properties
	if current != nil {
		currentProps = current.Properties
	}

	names := make([]string, 0, len(resolved.Values))
	for name := range resolved.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		desired := resolved.Values[name]
		before, exists := currentProps[name]
		if exists && valuesEqual(before, desired) {
			continue
		}
		diff.add(name, before, desired, exists)
	}

	if resolved.CryptoSet {
		var currentCrypto *CryptoConfiguration
		if current != nil {
			c, err := CryptoFromProperties(currentProps)
			if err != nil {
				return nil, NewOperationError("failed to read current crypto configuration", err).
					WithResource(current.Name)
			}
			currentCrypto = c
		}
		if !resolved.Crypto.Equal(currentCrypto) {
			diff.CryptoChanged = true
			diff.add(schema.PropCryptoConfiguration.Name(), currentCrypto.Property(), resolved.Crypto.Property(), currentCrypto != nil)
		}
	}
	return diff, nil
}

func (d *PropertyDiff) add(name string, before, after interface{}, existed bool) {
	d.Payload[name] = after
	action := ChangeActionModify
	if !existed {
		action = ChangeActionAdd
	}
	d.Changes = append(d.Changes, Change{Path: name, Before: before, After: after, Action: action})
	if spec, ok := schema.Lookup(name); ok && !spec.SettableWhileActive() {
		d.RequiresStop = true
	}
}

// valuesEqual compares two property values after a JSON round trip so that
// numeric types and list element types do not matter.
func valuesEqual(a, b interface{}) bool {
	an, err := normalizeValue(a)
	if err != nil {
		return false
	}
	bn, err := normalizeValue(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(an, bn)
}

func normalizeValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeProperties overlays a payload onto a snapshot by key. Properties not
// mentioned in the payload keep their current value.
func MergeProperties(current, payload Properties) Properties {
	out := current.Clone()
	for k, v := range payload {
		out[k] = v
	}
	return out
}
