package transit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		routeKind string
		lineRef   string
		expected  VehicleType
	}{
		{"tram ignores ref", "tram", "anything", Tram},
		{"tram with night-like ref", "tram", "N1", Tram},
		{"night bus", "bus", "N10", NightBus},
		{"regional bus", "bus", "435", RegionalBus},
		{"city bus", "bus", "105", Bus},
		{"bus without ref", "bus", "", Bus},
		{"trolleybus", "trolleybus", "61", Trolley},
		{"subway", "subway", "M2", Subway},
		{"unknown kind", "unknown", "x", Bus},
		{"empty kind", "", "", Bus},
		{"kind is case insensitive", " Tram ", "1", Tram},
		{"lower-case night ref", "bus", "n101", NightBus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.routeKind, tt.lineRef))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, RegionalBus, Classify("bus", "435"))
	}
}

func TestRouteKindFromGTFS(t *testing.T) {
	assert.Equal(t, Tram, Classify(RouteKindFromGTFS(0), "41"))
	assert.Equal(t, Subway, Classify(RouteKindFromGTFS(1), "M1"))
	assert.Equal(t, Bus, Classify(RouteKindFromGTFS(3), "133"))
	assert.Equal(t, NightBus, Classify(RouteKindFromGTFS(3), "N109"))
	assert.Equal(t, Trolley, Classify(RouteKindFromGTFS(11), "69"))
	assert.Equal(t, Bus, Classify(RouteKindFromGTFS(7), "x"))
}

func TestVehicleType_ColorsAreDistinct(t *testing.T) {
	seen := make(map[string]VehicleType)
	for _, v := range AllVehicleTypes() {
		c := v.Color()
		require.NotEmpty(t, c)
		if other, ok := seen[c]; ok {
			t.Fatalf("%s and %s share color %s", v, other, c)
		}
		seen[c] = v
	}
}

func TestVehicleType_OutOfRangeFallsBackToBus(t *testing.T) {
	v := VehicleType(42)
	assert.Equal(t, "BUS", v.String())
	assert.Equal(t, Bus.Color(), v.Color())
}

func TestVehicleType_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Type VehicleType `json:"type"`
	}{NightBus})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NIGHT_BUS"}`, string(b))

	var decoded struct {
		Type VehicleType `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"TROLLEY"}`), &decoded))
	assert.Equal(t, Trolley, decoded.Type)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"FERRY"}`), &decoded))
}

func TestDominantVehicleType(t *testing.T) {
	assert.Equal(t, Bus, DominantVehicleType(nil))
	assert.Equal(t, Tram, DominantVehicleType([]LineRef{
		{ID: "1", VehicleType: Bus},
		{ID: "2", VehicleType: Tram},
		{ID: "3", VehicleType: NightBus},
	}))
	assert.Equal(t, Subway, DominantVehicleType([]LineRef{
		{ID: "M1", VehicleType: Subway},
		{ID: "41", VehicleType: Tram},
	}))
}
