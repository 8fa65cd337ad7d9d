package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/openfroyo/partsync/pkg/schema"
)

// ResolvedProperties is the validated, translated form of the input
// properties, keyed by controller name.
type ResolvedProperties struct {
	// Values holds every real property to be set, except the crypto
	// configuration. Artificial properties appear under their target name.
	Values Properties

	// CryptoSet reports whether crypto_configuration was specified.
	CryptoSet bool

	// Crypto is the desired crypto configuration when CryptoSet is true.
	Crypto *CryptoConfiguration
}

// PropertyResolver validates input properties against the schema, resolves
// artificial properties and coerces values.
type PropertyResolver struct {
	dir    Directory
	crypto *CryptoMerger
}

// NewPropertyResolver creates a resolver that looks dependents up through dir.
func NewPropertyResolver(dir Directory) *PropertyResolver {
	return &PropertyResolver{
		dir:    dir,
		crypto: NewCryptoMerger(dir),
	}
}

// Resolve validates every input property in name order and stops at the
// first violation. part is nil when the partition does not exist.
func (r *PropertyResolver) Resolve(ctx context.Context, cpc *CPC, part *Partition, input map[string]interface{}) (*ResolvedProperties, error) {
	out := &ResolvedProperties{Values: make(Properties, len(input))}

	names := make([]string, 0, len(input))
	for name := range input {
		names = append(names, name)
	}
	sort.Strings(names)

	exists := part != nil
	seen := make(map[schema.PropertyID]string, len(names))

	for _, name := range names {
		value := input[name]

		spec, ok := schema.Lookup(name)
		if !ok {
			return nil, NewParameterError("property %q is not a supported partition property", name).
				WithDetail("property", name)
		}
		if prev, dup := seen[spec.ID]; dup {
			return nil, NewParameterError("property %s is specified more than once (as %q and %q)",
				spec.InputName(), prev, name)
		}
		seen[spec.ID] = name

		switch rule := spec.Rule.(type) {
		case schema.ReadOnly:
			msg := fmt.Sprintf("property %s is read-only", spec.InputName())
			if rule.Hint != "" {
				msg += "; " + rule.Hint
			}
			return nil, NewParameterError("%s", msg).WithDetail("property", spec.InputName())

		case schema.CreateOnly:
			if exists {
				return nil, NewParameterError("property %s can only be specified when creating a partition; partition %s already exists",
					spec.InputName(), part.Name).WithDetail("property", spec.InputName())
			}

		case schema.UpdateOnly:
			if !exists {
				return nil, NewParameterError("property %s can only be specified for an existing partition",
					spec.InputName()).WithDetail("property", spec.InputName())
			}

		case schema.Artificial:
			if !exists {
				return nil, NewParameterError("property %s can only be specified for an existing partition",
					spec.InputName()).WithDetail("property", spec.InputName())
			}
			uri, err := r.resolveDependent(ctx, part, spec, rule, value)
			if err != nil {
				return nil, err
			}
			out.Values[rule.Target.Name()] = uri
			continue
		}

		if spec.Kind == schema.KindCrypto {
			desired, err := r.crypto.Merge(ctx, cpc, value)
			if err != nil {
				return nil, err
			}
			out.CryptoSet = true
			out.Crypto = desired
			continue
		}

		v, err := schema.Coerce(spec, value)
		if err != nil {
			return nil, NewParameterError("%v", err).WithDetail("property", spec.InputName())
		}
		out.Values[spec.Name] = v
	}
	return out, nil
}

// resolveDependent looks up the dependent named by an artificial property
// and returns its URI.
func (r *PropertyResolver) resolveDependent(ctx context.Context, part *Partition, spec schema.Spec, rule schema.Artificial, value interface{}) (string, error) {
	name, err := schema.ToString(value)
	if err != nil || value == nil {
		return "", NewParameterError("property %s must name a %s, got %v", spec.InputName(), rule.Dependent, value).
			WithDetail("property", spec.InputName())
	}

	matches, err := r.dir.FindDependents(ctx, part.URI, rule.Dependent, name)
	if err != nil {
		return "", NewOperationError(fmt.Sprintf("failed to look up %s %q", rule.Dependent, name), err).
			WithResource(part.Name)
	}
	switch len(matches) {
	case 1:
		return matches[0].URI, nil
	case 0:
		return "", NewParameterError("%s %q specified in property %s does not exist in partition %s",
			dependentLabel(rule.Dependent), name, spec.InputName(), part.Name).
			WithDetail("property", spec.InputName()).
			WithDetail("value", name)
	default:
		return "", NewParameterError("%s name %q specified in property %s matches %d resources in partition %s",
			dependentLabel(rule.Dependent), name, spec.InputName(), len(matches), part.Name).
			WithDetail("property", spec.InputName()).
			WithDetail("value", name)
	}
}

func dependentLabel(kind DependentKind) string {
	switch kind {
	case schema.DependentNIC:
		return "NIC"
	case schema.DependentHBA:
		return "HBA"
	case schema.DependentVirtualFunction:
		return "virtual function"
	case schema.DependentStorageGroup:
		return "storage group"
	default:
		return string(kind)
	}
}
