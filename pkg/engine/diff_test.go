package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openfroyo/partsync/pkg/schema"
)

type fakeDirectory struct {
	deps map[string][]Dependent // by scope URI
	err  error
}

func (d *fakeDirectory) FindCPC(ctx context.Context, name string) (*CPC, error) {
	return &CPC{Name: name, URI: "/api/cpcs/1"}, nil
}

func (d *fakeDirectory) FindPartition(ctx context.Context, cpc *CPC, name string) (*Partition, error) {
	return nil, nil
}

func (d *fakeDirectory) FindDependents(ctx context.Context, scopeURI string, kind DependentKind, name string) ([]Dependent, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []Dependent
	for _, dep := range d.deps[scopeURI] {
		if dep.Kind == kind && dep.Name == name {
			out = append(out, dep)
		}
	}
	return out, nil
}

var testCPC = &CPC{Name: "CPC1", URI: "/api/cpcs/1"}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{deps: map[string][]Dependent{
		"/api/cpcs/1": {
			{Kind: schema.DependentAdapter, Name: "c1", URI: "/api/adapters/c1", Properties: Properties{"type": "crypto"}},
			{Kind: schema.DependentAdapter, Name: "c2", URI: "/api/adapters/c2", Properties: Properties{"type": "crypto"}},
			{Kind: schema.DependentAdapter, Name: "osa", URI: "/api/adapters/osa", Properties: Properties{"type": "osd"}},
		},
		"/api/partitions/1": {
			{Kind: schema.DependentNIC, Name: "eth0", URI: "/api/partitions/1/nics/1"},
			{Kind: schema.DependentHBA, Name: "fc0", URI: "/api/partitions/1/hbas/1"},
		},
	}}
}

func existing() *Partition {
	return &Partition{
		Name:   "p1",
		URI:    "/api/partitions/1",
		Status: PartitionStatusActive,
		Properties: Properties{
			"ifl-processors":    2,
			"description":       "db",
			"acceptable-status": []interface{}{"active"},
			"crypto-configuration": map[string]interface{}{
				"crypto-adapter-uris": []interface{}{"/api/adapters/c1"},
				"crypto-domain-configurations": []interface{}{
					map[string]interface{}{"domain-index": 1, "access-mode": "control"},
				},
			},
		},
	}
}

func resolve(t *testing.T, part *Partition, input map[string]interface{}) *ResolvedProperties {
	t.Helper()
	r := NewPropertyResolver(newFakeDirectory())
	out, err := r.Resolve(context.Background(), testCPC, part, input)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return out
}

func TestResolveCoercesAndTranslates(t *testing.T) {
	out := resolve(t, existing(), map[string]interface{}{
		"IFL_Processors":        "4",
		"boot_network_nic_name": "eth0",
		"boot_storage_hba_name": "fc0",
	})

	if out.Values["ifl-processors"] != 4 {
		t.Errorf("ifl-processors = %#v, want 4", out.Values["ifl-processors"])
	}
	if out.Values["boot-network-device"] != "/api/partitions/1/nics/1" {
		t.Errorf("boot-network-device = %v", out.Values["boot-network-device"])
	}
	if out.Values["boot-storage-device"] != "/api/partitions/1/hbas/1" {
		t.Errorf("boot-storage-device = %v", out.Values["boot-storage-device"])
	}
	if _, ok := out.Values["boot-network-nic-name"]; ok {
		t.Error("artificial property must not be sent")
	}
	if out.CryptoSet {
		t.Error("crypto must not be set")
	}
}

func TestResolveLookupFailureIsOperationError(t *testing.T) {
	dir := newFakeDirectory()
	dir.err = errors.New("HTTP 503: unavailable")
	r := NewPropertyResolver(dir)
	_, err := r.Resolve(context.Background(), testCPC, existing(), map[string]interface{}{"boot_network_nic_name": "eth0"})
	if !IsOperationError(err) {
		t.Fatalf("expected operation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP 503: unavailable") {
		t.Errorf("remote message not preserved: %v", err)
	}
}

func TestComputeDiff(t *testing.T) {
	part := existing()
	out := resolve(t, part, map[string]interface{}{
		"ifl_processors":    2.0,
		"description":       "web",
		"acceptable_status": []string{"active"},
	})

	diff, err := ComputeDiff(out, part)
	if err != nil {
		t.Fatalf("ComputeDiff() error = %v", err)
	}
	if len(diff.Payload) != 1 || diff.Payload["description"] != "web" {
		t.Errorf("payload = %v, want only description", diff.Payload)
	}
	if diff.RequiresStop {
		t.Error("description does not require a stop")
	}
	if len(diff.Changes) != 1 || diff.Changes[0].Action != ChangeActionModify || diff.Changes[0].Before != "db" {
		t.Errorf("changes = %+v", diff.Changes)
	}
}

func TestComputeDiffRequiresStop(t *testing.T) {
	part := existing()
	out := resolve(t, part, map[string]interface{}{"processor_mode": "dedicated"})
	diff, err := ComputeDiff(out, part)
	if err != nil {
		t.Fatalf("ComputeDiff() error = %v", err)
	}
	if !diff.RequiresStop {
		t.Error("processor-mode requires a stopped partition")
	}
	if diff.Changes[0].Action != ChangeActionAdd {
		t.Errorf("action = %s, want add", diff.Changes[0].Action)
	}
}

func TestComputeDiffCreateCarriesEverything(t *testing.T) {
	out := resolve(t, nil, map[string]interface{}{"ifl_processors": 1, "type": "ssc"})
	diff, err := ComputeDiff(out, nil)
	if err != nil {
		t.Fatalf("ComputeDiff() error = %v", err)
	}
	if len(diff.Payload) != 2 {
		t.Errorf("payload = %v", diff.Payload)
	}
}

func cryptoBlock(adapters []interface{}, index int, mode string) map[string]interface{} {
	return map[string]interface{}{
		"crypto_adapter_names": adapters,
		"crypto_domain_configurations": []interface{}{
			map[string]interface{}{"domain_index": index, "access_mode": mode},
		},
	}
}

func TestComputeDiffCrypto(t *testing.T) {
	tests := []struct {
		name    string
		block   map[string]interface{}
		changed bool
	}{
		{"same", cryptoBlock([]interface{}{"c1"}, 1, "control"), false},
		{"same with hyphenated keys", map[string]interface{}{
			"crypto-adapter-names": []interface{}{"c1"},
			"crypto-domain-configurations": []interface{}{
				map[string]interface{}{"domain-index": 1, "access-mode": "control"},
			},
		}, false},
		{"added adapter", cryptoBlock([]interface{}{"c2", "c1"}, 1, "control"), true},
		{"mode changed", cryptoBlock([]interface{}{"c1"}, 1, "control-usage"), true},
		{"emptied", map[string]interface{}{
			"crypto_adapter_names":         []interface{}{},
			"crypto_domain_configurations": []interface{}{},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part := existing()
			out := resolve(t, part, map[string]interface{}{"crypto_configuration": tt.block})
			diff, err := ComputeDiff(out, part)
			if err != nil {
				t.Fatalf("ComputeDiff() error = %v", err)
			}
			if diff.CryptoChanged != tt.changed {
				t.Errorf("CryptoChanged = %v, want %v", diff.CryptoChanged, tt.changed)
			}
			_, inPayload := diff.Payload["crypto-configuration"]
			if inPayload != tt.changed {
				t.Errorf("crypto-configuration in payload = %v", inPayload)
			}
		})
	}
}

func TestCryptoNullRemovesConfiguration(t *testing.T) {
	part := existing()
	out := resolve(t, part, map[string]interface{}{"crypto_configuration": nil})
	diff, err := ComputeDiff(out, part)
	if err != nil {
		t.Fatalf("ComputeDiff() error = %v", err)
	}
	if !diff.CryptoChanged {
		t.Fatal("removing the configuration is a change")
	}
	if v, ok := diff.Payload["crypto-configuration"]; !ok || v != nil {
		t.Errorf("payload crypto-configuration = %v, want nil", v)
	}
}

func TestCryptoConfigurationEqual(t *testing.T) {
	a := &CryptoConfiguration{
		AdapterURIs:          []string{"a", "b"},
		DomainConfigurations: []DomainConfig{{1, AccessModeControl}, {2, AccessModeControlUsage}},
	}
	b := &CryptoConfiguration{
		AdapterURIs:          []string{"b", "a", "a"},
		DomainConfigurations: []DomainConfig{{2, AccessModeControlUsage}, {1, AccessModeControl}},
	}
	if !a.Equal(b) {
		t.Error("order and duplicates must not matter")
	}
	empty := &CryptoConfiguration{}
	if empty.Equal(nil) || (*CryptoConfiguration)(nil).Equal(empty) {
		t.Error("an empty configuration differs from none")
	}
	if !(*CryptoConfiguration)(nil).Equal(nil) {
		t.Error("nil equals nil")
	}

	c := a.Clone()
	c.AdapterURIs[0] = "z"
	if a.AdapterURIs[0] != "a" {
		t.Error("Clone must copy the adapter list")
	}
}

func TestCryptoFromProperties(t *testing.T) {
	cc, err := CryptoFromProperties(existing().Properties)
	if err != nil {
		t.Fatalf("CryptoFromProperties() error = %v", err)
	}
	if len(cc.AdapterURIs) != 1 || cc.DomainConfigurations[0] != (DomainConfig{1, AccessModeControl}) {
		t.Errorf("got %+v", cc)
	}

	cc, err = CryptoFromProperties(Properties{"crypto-configuration": nil})
	if err != nil || cc != nil {
		t.Errorf("expected nil configuration, got %v, %v", cc, err)
	}
	if _, err := CryptoFromProperties(Properties{"crypto-configuration": "x"}); err == nil {
		t.Error("expected error for malformed property")
	}
}

func TestMergeProperties(t *testing.T) {
	current := Properties{"a": 1, "b": 2}
	merged := MergeProperties(current, Properties{"b": 3, "c": 4})
	if merged["a"] != 1 || merged["b"] != 3 || merged["c"] != 4 {
		t.Errorf("MergeProperties() = %v", merged)
	}
	if current["b"] != 2 {
		t.Error("MergeProperties must not modify its input")
	}
}
