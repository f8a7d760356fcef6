package hue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

const lightsJSON = `{"errors":[],"data":[{
	"id":"light-1","type":"light",
	"owner":{"rid":"device-1","rtype":"device"},
	"metadata":{"name":"Desk","archetype":"classic_bulb"},
	"on":{"on":true},
	"dimming":{"brightness":55.5},
	"color":{"xy":{"x":0.45,"y":0.41}},
	"color_temperature":{"mirek":366,"mirek_valid":true,"mirek_schema":{"mirek_minimum":153,"mirek_maximum":500}}
}]}`

const resourcesJSON = `{"errors":[],"data":[
	{"id":"light-1","type":"light","owner":{"rid":"device-1","rtype":"device"}},
	{"id":"zc-1","type":"zigbee_connectivity","owner":{"rid":"device-1","rtype":"device"},"status":"connected"},
	{"id":"zc-2","type":"zigbee_connectivity","owner":{"rid":"device-2","rtype":"device"},"status":"connectivity_issue"}
]}`

func newBridgeServer(t *testing.T) (*httptest.Server, func() []map[string]any) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clip/v2/resource/light", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(applicationKeyHeader) != "app-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, lightsJSON) //nolint:errcheck // test server
	})
	mux.HandleFunc("GET /clip/v2/resource", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, resourcesJSON) //nolint:errcheck // test server
	})
	mux.HandleFunc("GET /clip/v2/resource/light/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.PathValue("id") != "light-1" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"errors":[{"description":"Not Found"}],"data":[]}`) //nolint:errcheck // test server
			return
		}
		io.WriteString(w, lightsJSON) //nolint:errcheck // test server
	})
	mux.HandleFunc("PUT /clip/v2/resource/light/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"errors":[],"data":[{"rid":"light-1","rtype":"light"}]}`) //nolint:errcheck // test server
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]any(nil), bodies...)
	}
}

func TestOpenhueAPI_Lights(t *testing.T) {
	srv, _ := newBridgeServer(t)
	api, err := newOpenhueAPI(srv.URL, "app-key", srv.Client())
	require.NoError(t, err)

	lights, err := api.Lights(context.Background())
	require.NoError(t, err)
	require.Len(t, lights, 1)

	l := lights[0]
	assert.Equal(t, "light-1", l.ID)
	assert.Equal(t, "device-1", l.Owner)
	assert.Equal(t, "Desk", l.Name)
	assert.True(t, *l.On)
	assert.InDelta(t, 55.5, *l.Brightness, 0.01)
	assert.True(t, l.Dimmable)
	assert.True(t, l.HasColor)
	assert.InDelta(t, 0.45, l.Color.X, 0.001)
	assert.Equal(t, 366, *l.Mirek)
	assert.Equal(t, 153, *l.MirekMin)
	assert.Equal(t, 500, *l.MirekMax)
}

func TestOpenhueAPI_WrongKey(t *testing.T) {
	srv, _ := newBridgeServer(t)
	api, err := newOpenhueAPI(srv.URL, "wrong", srv.Client())
	require.NoError(t, err)

	_, err = api.Lights(context.Background())
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestOpenhueAPI_LightNotFound(t *testing.T) {
	srv, _ := newBridgeServer(t)
	api, err := newOpenhueAPI(srv.URL, "app-key", srv.Client())
	require.NoError(t, err)

	_, err = api.Light(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLightNotFound)
}

func TestOpenhueAPI_UpdateLight(t *testing.T) {
	srv, bodies := newBridgeServer(t)
	api, err := newOpenhueAPI(srv.URL, "app-key", srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, api.UpdateLight(ctx, "light-1", lighting.State{On: lighting.Bool(true)}))
	require.NoError(t, api.UpdateLight(ctx, "light-1", lighting.State{Brightness: lighting.Float(40)}))
	require.NoError(t, api.UpdateLight(ctx, "light-1", lighting.State{ColorTemperature: lighting.Int(300)}))

	got := bodies()
	require.Len(t, got, 3)
	assert.Equal(t, map[string]any{"on": true}, got[0]["on"])
	assert.Equal(t, map[string]any{"brightness": 40.0}, got[1]["dimming"])
	assert.Equal(t, map[string]any{"mirek": 300.0}, got[2]["color_temperature"])
	assert.NotContains(t, got[0], "dimming", "one field group per request")
}

func TestOpenhueAPI_Connectivity(t *testing.T) {
	srv, _ := newBridgeServer(t)
	api, err := newOpenhueAPI(srv.URL, "app-key", srv.Client())
	require.NoError(t, err)

	links, err := api.Connectivity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"device-1": true, "device-2": false}, links)
}
