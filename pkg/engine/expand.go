package engine

import (
	"context"
	"fmt"

	"github.com/openfroyo/partsync/pkg/schema"
)

// Result property names of expanded collections.
const (
	propNICs             = "nics"
	propHBAs             = "hbas"
	propVirtualFunctions = "virtual-functions"
	propStorageGroups    = "storage-groups"
	propCryptoAdapters   = "crypto-adapters"
)

var dependentKeys = []struct {
	kind     DependentKind
	property string
}{
	{schema.DependentNIC, propNICs},
	{schema.DependentHBA, propHBAs},
	{schema.DependentVirtualFunction, propVirtualFunctions},
}

// expand returns the partition properties with the requested collections
// added. Facts always include the dependents.
func (r *Reconciler) expand(ctx context.Context, part *Partition, req *Request, facts bool) (Properties, error) {
	props := part.Properties.Clone()
	props[schema.PropName.Name()] = part.Name
	props[schema.PropStatus.Name()] = string(part.Status)

	if facts || req.ExpandDependents {
		for _, key := range dependentKeys {
			list, err := r.listDependents(ctx, part, key.kind)
			if err != nil {
				return nil, err
			}
			props[key.property] = list
		}
	}

	if req.ExpandStorageGroups {
		list, err := r.listDependents(ctx, part, schema.DependentStorageGroup)
		if err != nil {
			return nil, err
		}
		props[propStorageGroups] = list
	}

	if req.ExpandCryptoAdapters {
		if err := r.expandCryptoAdapters(ctx, part.Name, props); err != nil {
			return nil, err
		}
	}
	return props, nil
}

// expandCryptoAdapters adds the properties of each configured crypto adapter
// to the crypto configuration held in props.
func (r *Reconciler) expandCryptoAdapters(ctx context.Context, name string, props Properties) error {
	cc, err := CryptoFromProperties(props)
	if err != nil {
		return NewOperationError("failed to read crypto configuration", err).WithResource(name)
	}
	if cc == nil {
		return nil
	}
	adapters := make([]interface{}, 0, len(cc.AdapterURIs))
	for _, uri := range cc.AdapterURIs {
		adapter, err := r.transport.GetDependent(ctx, schema.DependentAdapter, uri)
		if err != nil {
			return AsOperationError(fmt.Sprintf("failed to read crypto adapter %s", uri), err)
		}
		if adapter != nil {
			adapters = append(adapters, map[string]interface{}(adapter.Properties.Clone()))
		}
	}
	rendered := cc.Property().(map[string]interface{})
	rendered[propCryptoAdapters] = adapters
	props[schema.PropCryptoConfiguration.Name()] = rendered
	return nil
}

func (r *Reconciler) listDependents(ctx context.Context, part *Partition, kind DependentKind) ([]interface{}, error) {
	deps, err := r.transport.ListDependents(ctx, part.URI, kind)
	if err != nil {
		return nil, AsOperationError(fmt.Sprintf("failed to list %ss of partition %s", dependentLabel(kind), part.Name), err)
	}
	out := make([]interface{}, 0, len(deps))
	for _, d := range deps {
		out = append(out, map[string]interface{}(d.Properties.Clone()))
	}
	return out, nil
}
