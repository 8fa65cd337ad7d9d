package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/partsync/pkg/schema"
)

// Keys of the crypto_configuration input block.
const (
	cryptoKeyAdapterNames = "crypto_adapter_names"
	cryptoKeyDomainConfigs = "crypto_domain_configurations"
	cryptoKeyDomainIndex   = "domain_index"
	cryptoKeyAccessMode    = "access_mode"
)

// Keys of the crypto-configuration controller property.
const (
	cryptoPropAdapterURIs   = "crypto-adapter-uris"
	cryptoPropDomainConfigs = "crypto-domain-configurations"
	cryptoPropDomainIndex   = "domain-index"
	cryptoPropAccessMode    = "access-mode"
)

// Equal reports whether two configurations assign the same adapters and the
// same domains, regardless of order. A nil configuration only equals nil.
func (c *CryptoConfiguration) Equal(o *CryptoConfiguration) bool {
	if c == nil || o == nil {
		return c == nil && o == nil
	}
	if !sameStringSet(c.AdapterURIs, o.AdapterURIs) {
		return false
	}
	return sameDomainSet(c.DomainConfigurations, o.DomainConfigurations)
}

// Clone returns a deep copy of the configuration.
func (c *CryptoConfiguration) Clone() *CryptoConfiguration {
	if c == nil {
		return nil
	}
	out := &CryptoConfiguration{
		AdapterURIs:          make([]string, len(c.AdapterURIs)),
		DomainConfigurations: make([]DomainConfig, len(c.DomainConfigurations)),
	}
	copy(out.AdapterURIs, c.AdapterURIs)
	copy(out.DomainConfigurations, c.DomainConfigurations)
	return out
}

// Property renders the configuration as the crypto-configuration controller
// property value. A nil configuration renders as nil.
func (c *CryptoConfiguration) Property() interface{} {
	if c == nil {
		return nil
	}
	uris := make([]interface{}, 0, len(c.AdapterURIs))
	for _, u := range c.AdapterURIs {
		uris = append(uris, u)
	}
	domains := make([]interface{}, 0, len(c.DomainConfigurations))
	for _, d := range c.DomainConfigurations {
		domains = append(domains, map[string]interface{}{
			cryptoPropDomainIndex: d.DomainIndex,
			cryptoPropAccessMode:  d.AccessMode,
		})
	}
	return map[string]interface{}{
		cryptoPropAdapterURIs:   uris,
		cryptoPropDomainConfigs: domains,
	}
}

// CryptoFromProperties extracts the crypto configuration from a partition
// property map. It returns nil when the partition has none.
func CryptoFromProperties(props Properties) (*CryptoConfiguration, error) {
	raw, ok := props[schema.PropCryptoConfiguration.Name()]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case *CryptoConfiguration:
		return v.Clone(), nil
	case CryptoConfiguration:
		return v.Clone(), nil
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("crypto-configuration has unexpected type %T", raw)
	}
	out := &CryptoConfiguration{}
	if uris, ok := m[cryptoPropAdapterURIs]; ok && uris != nil {
		list, err := schema.ToStringList(uris)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cryptoPropAdapterURIs, err)
		}
		out.AdapterURIs = list
	}
	if domains, ok := m[cryptoPropDomainConfigs]; ok && domains != nil {
		items, ok := domains.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s has unexpected type %T", cryptoPropDomainConfigs, domains)
		}
		for i, item := range items {
			dm, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s[%d] has unexpected type %T", cryptoPropDomainConfigs, i, item)
			}
			idx, err := schema.ToInt(dm[cryptoPropDomainIndex])
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", cryptoPropDomainConfigs, i, err)
			}
			mode, _ := dm[cryptoPropAccessMode].(string)
			out.DomainConfigurations = append(out.DomainConfigurations, DomainConfig{DomainIndex: idx, AccessMode: mode})
		}
	}
	return out, nil
}

// CryptoMerger validates a crypto_configuration input block and turns it into
// the replacement configuration.
type CryptoMerger struct {
	dir Directory
}

// NewCryptoMerger creates a merger resolving adapter names through dir.
func NewCryptoMerger(dir Directory) *CryptoMerger {
	return &CryptoMerger{dir: dir}
}

// Merge builds the desired configuration from the input block. Both keys are
// required: the result replaces the current configuration as a whole. Adapter
// names are resolved in the CPC scope. A nil input removes the configuration.
func (m *CryptoMerger) Merge(ctx context.Context, cpc *CPC, value interface{}) (*CryptoConfiguration, error) {
	if value == nil {
		return nil, nil
	}
	block, ok := value.(map[string]interface{})
	if !ok {
		return nil, NewParameterError("crypto_configuration must be a mapping, got %T", value).
			WithDetail("property", "crypto_configuration")
	}
	block = normalizeKeys(block)

	for key := range block {
		if key != cryptoKeyAdapterNames && key != cryptoKeyDomainConfigs {
			return nil, NewParameterError("crypto_configuration has unsupported key %q", key)
		}
	}
	rawNames, hasNames := block[cryptoKeyAdapterNames]
	if !hasNames {
		return nil, NewParameterError("crypto_configuration must specify %s", cryptoKeyAdapterNames).
			WithDetail("property", "crypto_configuration")
	}
	rawDomains, hasDomains := block[cryptoKeyDomainConfigs]
	if !hasDomains {
		return nil, NewParameterError("crypto_configuration must specify %s", cryptoKeyDomainConfigs).
			WithDetail("property", "crypto_configuration")
	}

	uris, err := m.resolveAdapters(ctx, cpc, rawNames)
	if err != nil {
		return nil, err
	}
	domains, err := parseDomainConfigs(rawDomains)
	if err != nil {
		return nil, err
	}
	return &CryptoConfiguration{AdapterURIs: uris, DomainConfigurations: domains}, nil
}

func (m *CryptoMerger) resolveAdapters(ctx context.Context, cpc *CPC, raw interface{}) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	names, err := schema.ToStringList(raw)
	if err != nil {
		return nil, NewParameterError("%s: %v", cryptoKeyAdapterNames, err)
	}

	uris := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		matches, err := m.dir.FindDependents(ctx, cpc.URI, schema.DependentAdapter, name)
		if err != nil {
			return nil, NewOperationError(fmt.Sprintf("failed to look up crypto adapter %q", name), err).
				WithResource(cpc.Name)
		}
		switch len(matches) {
		case 0:
			return nil, NewParameterError("crypto adapter %q specified in %s does not exist in CPC %s",
				name, cryptoKeyAdapterNames, cpc.Name)
		case 1:
		default:
			return nil, NewParameterError("crypto adapter name %q specified in %s is ambiguous in CPC %s",
				name, cryptoKeyAdapterNames, cpc.Name)
		}
		adapter := matches[0]
		if t, ok := adapter.Properties["type"].(string); ok && t != "crypto" {
			return nil, NewParameterError("adapter %q specified in %s is not a crypto adapter (type %s)",
				name, cryptoKeyAdapterNames, t)
		}
		if !seen[adapter.URI] {
			seen[adapter.URI] = true
			uris = append(uris, adapter.URI)
		}
	}
	return uris, nil
}

func parseDomainConfigs(raw interface{}) ([]DomainConfig, error) {
	if raw == nil {
		return []DomainConfig{}, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, NewParameterError("%s must be a list, got %T", cryptoKeyDomainConfigs, raw)
	}

	out := make([]DomainConfig, 0, len(items))
	seen := make(map[int]bool, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, NewParameterError("%s[%d] must be a mapping, got %T", cryptoKeyDomainConfigs, i, item)
		}
		entry = normalizeKeys(entry)

		rawIndex, ok := entry[cryptoKeyDomainIndex]
		if !ok {
			return nil, NewParameterError("%s[%d] is missing the %s field", cryptoKeyDomainConfigs, i, cryptoKeyDomainIndex)
		}
		rawMode, ok := entry[cryptoKeyAccessMode]
		if !ok {
			return nil, NewParameterError("%s[%d] is missing the %s field", cryptoKeyDomainConfigs, i, cryptoKeyAccessMode)
		}

		index, err := schema.ToInt(rawIndex)
		if err != nil {
			return nil, NewParameterError("%s[%d].%s: %v", cryptoKeyDomainConfigs, i, cryptoKeyDomainIndex, err)
		}
		if index < 0 {
			return nil, NewParameterError("%s[%d].%s must not be negative: %d", cryptoKeyDomainConfigs, i, cryptoKeyDomainIndex, index)
		}
		if seen[index] {
			return nil, NewParameterError("%s: domain index %d is specified more than once", cryptoKeyDomainConfigs, index)
		}
		seen[index] = true

		mode, _ := rawMode.(string)
		if mode != AccessModeControl && mode != AccessModeControlUsage {
			return nil, NewParameterError("%s[%d].%s must be %q or %q, got %v", cryptoKeyDomainConfigs, i,
				cryptoKeyAccessMode, AccessModeControl, AccessModeControlUsage, rawMode)
		}
		out = append(out, DomainConfig{DomainIndex: index, AccessMode: mode})
	}
	return out, nil
}

func normalizeKeys(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[strings.ReplaceAll(strings.ToLower(k), "-", "_")] = v
	}
	return out
}

func sameStringSet(a, b []string) bool {
	as := make(map[string]bool, len(a))
	for _, s := range a {
		as[s] = true
	}
	bs := make(map[string]bool, len(b))
	for _, s := range b {
		if !as[s] {
			return false
		}
		bs[s] = true
	}
	return len(as) == len(bs)
}

func sameDomainSet(a, b []DomainConfig) bool {
	key := func(ds []DomainConfig) []string {
		out := make([]string, 0, len(ds))
		seen := make(map[string]bool, len(ds))
		for _, d := range ds {
			k := fmt.Sprintf("%d/%s", d.DomainIndex, d.AccessMode)
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out
	}
	ka, kb := key(a), key(b)
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}
