package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/transit"
	"github.com/pietrosul/MyBusApp/internal/viewport"
)

func TestEnvelopes(t *testing.T) {
	clk := clock.NewMockClock(time.UnixMilli(1714550400000))

	ok := NewEntryResponse(map[string]string{"id": "1"}, clk)
	assert.Equal(t, 200, ok.Code)
	assert.Equal(t, "OK", ok.Text)
	assert.Equal(t, 2, ok.Version)
	assert.Equal(t, int64(1714550400000), ok.CurrentTime)

	b, err := json.Marshal(NewListResponse([]int{1, 2}, true, clk))
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":200,"currentTime":1714550400000,"text":"OK","version":2,
		"data":{"list":[1,2],"limitExceeded":true}}`, string(b))

	b, err = json.Marshal(NewErrorResponse(503, "catalog loading", clk))
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":503,"currentTime":1714550400000,"text":"catalog loading","version":2}`, string(b))
}

func TestNewCurrentTimeData(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	data := NewCurrentTimeData(now)
	assert.Equal(t, now.UnixMilli(), data.CurrentTime)
	assert.Equal(t, "2024-05-01T08:00:00Z", data.ReadableTime)
}

func TestNewVehicleTypeEntries(t *testing.T) {
	entries := NewVehicleTypeEntries()
	require.Len(t, entries, 6)
	assert.Equal(t, VehicleTypeEntry{Name: "TRAM", Color: transit.Tram.Color()}, entries[3])
}

func TestNewLineEntry_EncodesShape(t *testing.T) {
	line := transit.Line{
		ID: "L41", Name: "41", VehicleType: transit.Tram, Color: transit.Tram.Color(), OperatorColor: "#C0392B",
		Shape: []transit.LatLng{{Lat: 44.4128, Lon: 26.0371}, {Lat: 44.4268, Lon: 26.1025}},
	}

	entry := NewLineEntry(line, true)
	require.NotNil(t, entry.Polyline)
	assert.Equal(t, 2, entry.Polyline.Length)
	assert.InDelta(t, 5440, entry.Polyline.Meters, 100)

	coords, _, err := polyline.DecodeCoords([]byte(entry.Polyline.Points))
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.InDelta(t, 44.4268, coords[1][0], 1e-5)
	assert.InDelta(t, 26.1025, coords[1][1], 1e-5)

	b, err := json.Marshal(NewLineEntry(line, false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"L41","name":"41","vehicleType":"TRAM","color":"#D7261E","operatorColor":"#C0392B","notifications":false,"fare":0}`, string(b))

	assert.Nil(t, NewLineEntry(transit.Line{ID: "x"}, true).Polyline)
}

func TestStationEntries(t *testing.T) {
	s := transit.Station{ID: "S1", Name: "Piața Unirii", Lat: 44.4268, Lon: 26.1025, VehicleType: transit.Tram}

	entry := NewStationEntry(s)
	assert.Equal(t, transit.Tram.Color(), entry.Color)
	assert.Equal(t, []transit.LineRef{}, entry.Lines)
	assert.Nil(t, entry.Distance)

	near := NewStationEntryWithDistance(s, 44.4268, 26.1025)
	require.NotNil(t, near.Distance)
	assert.InDelta(t, 0, *near.Distance, 1e-6)

	b, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"color":"`+transit.Tram.Color()+`"`)
	assert.NotContains(t, string(b), "distance")
}

func TestNewArrivalsEntry(t *testing.T) {
	s := transit.Station{ID: "S1", Name: "Piața Unirii"}

	empty := NewArrivalsEntry(s, nil)
	assert.Equal(t, []transit.ArrivalEstimate{}, empty.Arrivals)
	assert.False(t, empty.Synthetic)

	synthetic := NewArrivalsEntry(s, []transit.ArrivalEstimate{{LineID: "a", Synthetic: true}, {LineID: "b", Synthetic: true}})
	assert.True(t, synthetic.Synthetic)

	mixed := NewArrivalsEntry(s, []transit.ArrivalEstimate{{LineID: "a", Synthetic: true}, {LineID: "b"}})
	assert.False(t, mixed.Synthetic)
}

func TestNewStationsViewEntry(t *testing.T) {
	view := viewport.StationsView{
		State:  viewport.StateReady,
		Region: transit.Region{Lat: 44.43, Lon: 26.10, LatSpan: 0.02, LonSpan: 0.02},
		Stations: []transit.Station{
			{ID: "s1", Name: "Piața Unirii", Lat: 44.427, Lon: 26.102, VehicleType: transit.Tram},
		},
		Sequence: 4,
	}
	view.Bounds = view.Region.Bounds()

	entry := NewStationsViewEntry(view)
	require.Len(t, entry.Stations, 1)
	assert.Equal(t, transit.Tram.Color(), entry.Stations[0].Color)
	assert.Equal(t, []transit.LineRef{}, entry.Stations[0].Lines)
	assert.Equal(t, uint64(4), entry.Sequence)

	b, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"ready"`)
}
