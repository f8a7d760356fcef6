package hue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openhue/openhue-go"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// applicationKeyHeader carries the bridge credential on every request.
const applicationKeyHeader = "hue-application-key"

// light is the adapter's view of a bridge light resource.
type light struct {
	ID    string
	Owner string // id of the owning device resource
	Name  string

	On         *bool
	Brightness *float64
	Color      *lighting.XY
	Mirek      *int

	Dimmable bool
	HasColor bool
	HasMirek bool
	MirekMin *int
	MirekMax *int
}

// room is a bridge room with the device resources it contains.
type room struct {
	ID        string
	Name      string
	Archetype string
	Children  []string
}

// lightAPI is the subset of the bridge REST API the adapter uses.
type lightAPI interface {
	Lights(ctx context.Context) ([]light, error)
	Light(ctx context.Context, id string) (light, error)
	// UpdateLight sends one field group of patch.
	UpdateLight(ctx context.Context, id string, patch lighting.State) error
	Rooms(ctx context.Context) ([]room, error)
	// Connectivity reports, per owning device id, whether the device's
	// radio link is up.
	Connectivity(ctx context.Context) (map[string]bool, error)
}

// baseURL turns a stored host into the bridge base URL. Hosts without a
// scheme are reached over https.
func baseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// newHTTPClient builds the client for bridge requests. Bridges serve a
// self-signed certificate, so verification is usually disabled.
func newHTTPClient(insecure bool, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec // bridge certs are self-signed
	return &http.Client{Transport: transport, Timeout: timeout}
}

// openhueAPI implements lightAPI with the generated openhue client.
type openhueAPI struct {
	client *openhue.ClientWithResponses
}

func newOpenhueAPI(host, applicationKey string, httpClient *http.Client) (*openhueAPI, error) {
	client, err := openhue.NewClientWithResponses(
		baseURL(host),
		openhue.WithHTTPClient(httpClient),
		openhue.WithRequestEditorFn(func(_ context.Context, req *http.Request) error {
			req.Header.Set(applicationKeyHeader, applicationKey)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bridge client for %s: %w", host, err)
	}
	return &openhueAPI{client: client}, nil
}

func (o *openhueAPI) Lights(ctx context.Context) ([]light, error) {
	resp, err := o.client.GetLightsWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing lights: %w", err)
	}
	if resp.JSON200 == nil || resp.JSON200.Data == nil {
		return nil, statusError("listing lights", resp.HTTPResponse)
	}

	lights := make([]light, 0, len(*resp.JSON200.Data))
	for _, l := range *resp.JSON200.Data {
		if l.Id == nil {
			continue
		}
		lights = append(lights, fromLightGet(l))
	}
	return lights, nil
}

func (o *openhueAPI) Light(ctx context.Context, id string) (light, error) {
	resp, err := o.client.GetLightWithResponse(ctx, id)
	if err != nil {
		return light{}, fmt.Errorf("reading light %s: %w", id, err)
	}
	if resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode == http.StatusNotFound {
		return light{}, fmt.Errorf("%w: %s", ErrLightNotFound, id)
	}
	if resp.JSON200 == nil || resp.JSON200.Data == nil {
		return light{}, statusError("reading light "+id, resp.HTTPResponse)
	}
	if len(*resp.JSON200.Data) == 0 {
		return light{}, fmt.Errorf("%w: %s", ErrLightNotFound, id)
	}
	return fromLightGet((*resp.JSON200.Data)[0]), nil
}

func (o *openhueAPI) UpdateLight(ctx context.Context, id string, patch lighting.State) error {
	var body openhue.UpdateLightJSONRequestBody
	if patch.On != nil {
		on := *patch.On
		body.On = &openhue.On{On: &on}
	}
	if patch.Brightness != nil {
		b := openhue.Brightness(*patch.Brightness)
		body.Dimming = &openhue.Dimming{Brightness: &b}
	}
	if patch.Color != nil {
		x, y := float32(patch.Color.X), float32(patch.Color.Y)
		body.Color = &openhue.Color{Xy: &openhue.GamutPosition{X: &x, Y: &y}}
	}
	if patch.ColorTemperature != nil {
		mirek := *patch.ColorTemperature
		body.ColorTemperature = &openhue.ColorTemperature{Mirek: &mirek}
	}

	resp, err := o.client.UpdateLightWithResponse(ctx, id, body)
	if err != nil {
		return fmt.Errorf("updating light %s: %w", id, err)
	}
	if resp.HTTPResponse == nil || resp.HTTPResponse.StatusCode != http.StatusOK {
		return statusError("updating light "+id, resp.HTTPResponse)
	}
	return nil
}

func (o *openhueAPI) Rooms(ctx context.Context) ([]room, error) {
	resp, err := o.client.GetRoomsWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	if resp.JSON200 == nil || resp.JSON200.Data == nil {
		return nil, statusError("listing rooms", resp.HTTPResponse)
	}

	rooms := make([]room, 0, len(*resp.JSON200.Data))
	for _, r := range *resp.JSON200.Data {
		if r.Id == nil {
			continue
		}
		rm := room{ID: *r.Id, Name: *r.Id}
		if r.Metadata != nil {
			if r.Metadata.Name != nil {
				rm.Name = *r.Metadata.Name
			}
			if r.Metadata.Archetype != nil {
				rm.Archetype = string(*r.Metadata.Archetype)
			}
		}
		if r.Children != nil {
			for _, c := range *r.Children {
				if c.Rid != nil {
					rm.Children = append(rm.Children, *c.Rid)
				}
			}
		}
		rooms = append(rooms, rm)
	}
	return rooms, nil
}

// Connectivity reads the zigbee_connectivity resources. The generated client
// has no typed endpoint for them, so the generic resource listing is decoded
// here.
func (o *openhueAPI) Connectivity(ctx context.Context) (map[string]bool, error) {
	resp, err := o.client.GetResourcesWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	if resp.HTTPResponse == nil || resp.HTTPResponse.StatusCode != http.StatusOK {
		return nil, statusError("listing resources", resp.HTTPResponse)
	}

	var body struct {
		Data []clipResource `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decoding resources: %w", err)
	}

	links := make(map[string]bool)
	for _, r := range body.Data {
		if r.Type != "zigbee_connectivity" || r.Owner == nil {
			continue
		}
		links[r.Owner.Rid] = r.Status == connectivityConnected
	}
	return links, nil
}

func fromLightGet(l openhue.LightGet) light {
	out := light{ID: *l.Id}
	if l.Owner != nil && l.Owner.Rid != nil {
		out.Owner = *l.Owner.Rid
	}
	if l.Metadata != nil && l.Metadata.Name != nil {
		out.Name = *l.Metadata.Name
	}
	if l.On != nil && l.On.On != nil {
		out.On = lighting.Bool(*l.On.On)
	}
	if l.Dimming != nil {
		out.Dimmable = true
		if l.Dimming.Brightness != nil {
			out.Brightness = lighting.Float(float64(*l.Dimming.Brightness))
		}
	}
	if l.Color != nil {
		out.HasColor = true
		if xy := l.Color.Xy; xy != nil && xy.X != nil && xy.Y != nil {
			out.Color = &lighting.XY{X: float64(*xy.X), Y: float64(*xy.Y)}
		}
	}
	if ct := l.ColorTemperature; ct != nil {
		out.HasMirek = true
		if ct.Mirek != nil {
			out.Mirek = lighting.Int(int(*ct.Mirek))
		}
		if ct.MirekSchema != nil {
			if v := ct.MirekSchema.MirekMinimum; v != nil {
				out.MirekMin = lighting.Int(int(*v))
			}
			if v := ct.MirekSchema.MirekMaximum; v != nil {
				out.MirekMax = lighting.Int(int(*v))
			}
		}
	}
	return out
}

func statusError(op string, resp *http.Response) error {
	if resp == nil {
		return fmt.Errorf("%w: %s: no response", ErrBadStatus, op)
	}
	return fmt.Errorf("%w: %s: HTTP %d", ErrBadStatus, op, resp.StatusCode)
}
