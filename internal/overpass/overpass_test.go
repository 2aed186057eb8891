package overpass

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pietrosul/MyBusApp/internal/transit"
)

const sampleResponse = `{
  "version": 0.6,
  "generator": "Overpass API",
  "elements": [
    {"type":"relation","id":100,"tags":{"type":"route","route":"tram","ref":"41","colour":"#AA0000"},
     "members":[
       {"type":"node","ref":1,"role":"stop"},
       {"type":"node","ref":2,"role":"platform_entry_only"},
       {"type":"way","ref":900,"role":"","geometry":[{"lat":44.41,"lon":26.03},{"lat":44.42,"lon":26.04}]}
     ]},
    {"type":"relation","id":101,"tags":{"type":"route","route":"tram","ref":"41"},
     "members":[
       {"type":"node","ref":2,"role":"stop"},
       {"type":"way","ref":901,"role":"","geometry":[{"lat":50,"lon":50}]}
     ]},
    {"type":"relation","id":200,"tags":{"type":"route","route":"bus","ref":"N101"},
     "members":[{"type":"node","ref":2,"role":"platform"},{"type":"node","ref":3,"role":"stop"},{"type":"node","ref":4,"role":"stop"}]},
    {"type":"relation","id":300,"tags":{"type":"route","route":"bus"},"members":[]},
    {"type":"node","id":1,"lat":44.412,"lon":26.037,"tags":{"name":"Ghencea"}},
    {"type":"node","id":2,"lat":44.4268,"lon":26.1025,"tags":{"name":"Piața Unirii"}},
    {"type":"node","id":3,"lat":44.43,"lon":26.10},
    {"type":"node","id":4}
  ]
}`

func TestBuildQuery(t *testing.T) {
	q := BuildQuery("București", 60*time.Second)

	assert.Contains(t, q, "[out:json][timeout:60];")
	assert.Contains(t, q, `area["name"="București"]["boundary"="administrative"]`)
	assert.Contains(t, q, `["route"~"^(bus|tram|trolleybus|subway)$"]`)
	assert.Contains(t, q, "out body geom;")
	assert.Contains(t, q, "node(r.routes)")

	assert.Contains(t, BuildQuery(`Sector "1"`, 0), `\"1\"`)
	assert.Contains(t, BuildQuery("x", 0), "[timeout:60]")
}

func TestToSnapshot(t *testing.T) {
	resp, err := Decode([]byte(sampleResponse))
	require.NoError(t, err)
	snapshot := ToSnapshot(resp)

	require.Len(t, snapshot.Lines, 2, "both directions of tram 41 merge into one line")
	tram := snapshot.Lines[0]
	assert.Equal(t, "100", tram.ID)
	assert.Equal(t, "41", tram.Name)
	assert.Equal(t, transit.Tram, tram.VehicleType)
	assert.Equal(t, transit.Tram.Color(), tram.Color)
	assert.Equal(t, "#AA0000", tram.OperatorColor)
	assert.Equal(t, []transit.LatLng{{Lat: 44.41, Lon: 26.03}, {Lat: 44.42, Lon: 26.04}}, tram.Shape)

	night := snapshot.Lines[1]
	assert.Equal(t, transit.NightBus, night.VehicleType)
	assert.Equal(t, transit.NightBus.Color(), night.Color)
	assert.Empty(t, night.OperatorColor)
	for _, line := range snapshot.Lines {
		assert.Equal(t, line.VehicleType.Color(), line.Color, "line %s", line.ID)
	}

	require.Len(t, snapshot.Stations, 3, "nodes without coordinates are dropped")
	byID := map[string]transit.Station{}
	for _, s := range snapshot.Stations {
		byID[s.ID] = s
	}

	unirii := byID["2"]
	assert.Equal(t, "Piața Unirii", unirii.Name)
	assert.Equal(t, []transit.LineRef{
		{ID: "100", Name: "41", VehicleType: transit.Tram},
		{ID: "200", Name: "N101", VehicleType: transit.NightBus},
	}, unirii.Lines)
	assert.Equal(t, transit.Tram, unirii.VehicleType)

	assert.Equal(t, transit.UnknownStationName, byID["3"].Name)
	assert.Equal(t, transit.NightBus, byID["3"].VehicleType)
}

func TestDecode_Remark(t *testing.T) {
	_, err := Decode([]byte(`{"elements":[],"remark":"runtime error: Query timed out"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadAll(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		gotQuery = form.Get("data")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	loader := New(Config{URL: srv.URL, Area: "București", Timeout: 25 * time.Second}, nil, nil)
	snapshot, err := loader.LoadAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, snapshot.Lines, 2)
	assert.Len(t, snapshot.Stations, 3)
	assert.Contains(t, gotQuery, "[timeout:25]")
}

func TestLoadAll_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	loader := New(Config{URL: srv.URL, Area: "București"}, nil, nil)
	_, err := loader.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
