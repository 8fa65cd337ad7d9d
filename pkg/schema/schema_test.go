package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_SeparatorInsensitive(t *testing.T) {
	for _, name := range []string{"ifl_processors", "ifl-processors", "IFL_Processors", " ifl-processors "} {
		s, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, PropIFLProcessors, s.ID)
		assert.Equal(t, "ifl-processors", s.Name)
		assert.Equal(t, "ifl_processors", s.InputName())
	}

	_, ok := Lookup("no_such_property")
	assert.False(t, ok)
	_, ok = Lookup("")
	assert.False(t, ok)
}

func TestTable_Bidirectional(t *testing.T) {
	for _, s := range All() {
		byName, ok := Lookup(s.Name)
		require.True(t, ok, s.Name)
		assert.Equal(t, s.ID, byName.ID)

		byInput, ok := Lookup(s.InputName())
		require.True(t, ok, s.InputName())
		assert.Equal(t, s.ID, byInput.ID)

		got, ok := Get(s.ID)
		require.True(t, ok)
		assert.Equal(t, s.Name, got.Name)
		assert.Equal(t, s.Name, s.ID.String())
	}
}

func TestArtificialTargetsExist(t *testing.T) {
	arts := ByMutability(MutabilityArtificial)
	require.Len(t, arts, 2)
	for _, s := range arts {
		rule := s.Rule.(Artificial)
		target, ok := Get(rule.Target)
		require.True(t, ok, s.Name)
		assert.Equal(t, MutabilityReadOnly, target.Rule.Mutability(),
			"%s must only be settable through %s", target.Name, s.Name)
	}
}

func TestMutabilityClasses(t *testing.T) {
	tests := []struct {
		name string
		want Mutability
	}{
		{"name", MutabilityReadOnly},
		{"object_uri", MutabilityReadOnly},
		{"boot_network_device", MutabilityReadOnly},
		{"type", MutabilityCreateOnly},
		{"boot_storage_volume", MutabilityUpdateOnly},
		{"description", MutabilityAnytime},
		{"crypto_configuration", MutabilityAnytime},
		{"boot_network_nic_name", MutabilityArtificial},
		{"boot_storage_hba_name", MutabilityArtificial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, s.Rule.Mutability())
		})
	}
}

func TestSettableWhileActive(t *testing.T) {
	assert.True(t, MustGet(PropIFLProcessors).SettableWhileActive())
	assert.True(t, MustGet(PropDescription).SettableWhileActive())
	assert.False(t, MustGet(PropMaximumMemory).SettableWhileActive())
	assert.False(t, MustGet(PropProcessorMode).SettableWhileActive())
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		id      PropertyID
		in      interface{}
		want    interface{}
		wantErr bool
	}{
		{"int from string", PropIFLProcessors, "2", 2, false},
		{"int from float", PropInitialMemory, float64(512), 512, false},
		{"int from json number", PropInitialMemory, json.Number("1024"), 1024, false},
		{"int rejects fraction", PropIFLProcessors, 1.5, nil, true},
		{"int rejects text", PropIFLProcessors, "two", nil, true},
		{"int rejects null", PropIFLProcessors, nil, nil, true},
		{"bool from string", PropReserveResources, "True", true, false},
		{"bool rejects int", PropReserveResources, 1, nil, true},
		{"string", PropDescription, "desc", "desc", false},
		{"string from int", PropBootLogicalUnitNumber, 1, "1", false},
		{"nullable string", PropBootFTPHost, nil, nil, false},
		{"float from int", PropIFLAbsoluteProcessorCappingValue, 2, 2.0, false},
		{"string list", PropAcceptableStatus, []interface{}{"active", "stopped"}, []string{"active", "stopped"}, false},
		{"string list rejects mixed", PropAcceptableStatus, []interface{}{"active", 1}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(MustGet(tt.id), tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), MustGet(tt.id).InputName())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
