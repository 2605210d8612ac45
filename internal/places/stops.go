package places

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
)

// Stop is a public-transport stop or station.
type Stop struct {
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Kind      string  `json:"kind"`
	DistanceM float64 `json:"distance_m"`
}

// StopsQL builds the Overpass query for named stops around a point.
func StopsQL(lat, lon float64, radiusM int) string {
	around := fmt.Sprintf("node(around:%d,%f,%f)", radiusM, lat, lon)
	return "[out:json][timeout:25];(" +
		around + `["public_transport"="platform"];` +
		around + `["highway"="bus_stop"];` +
		around + `["railway"="station"];` +
		around + `["railway"="tram_stop"];` +
		");out;"
}

func stopKind(tags map[string]string) string {
	switch {
	case tags["railway"] == "station":
		return "train"
	case tags["railway"] == "tram_stop" || tags["tram"] == "yes":
		return "tram"
	case tags["highway"] == "bus_stop" || tags["bus"] == "yes":
		return "bus"
	}
	return "platform"
}

// Stops lists named stops within radiusM meters of lat/lon, nearest first.
// Platforms sharing a name collapse into the nearest one. Zero radius
// means 600 m.
func (o *Overpass) Stops(ctx context.Context, lat, lon float64, radiusM int) ([]Stop, error) {
	if radiusM <= 0 {
		radiusM = 600
	}
	base := o.BaseURL
	if base == "" {
		base = "https://overpass-api.de/api/interpreter"
	}
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	var resp overpassResponse
	if err := getJSON(ctx, o.HTTPClient, base+"?data="+url.QueryEscape(StopsQL(lat, lon, radiusM)), ua, &resp); err != nil {
		return nil, fmt.Errorf("overpass stops: %w", err)
	}
	byName := map[string]Stop{}
	for _, e := range resp.Elements {
		name := e.Tags["name"]
		if name == "" {
			continue
		}
		s := Stop{Name: name, Lat: e.Lat, Lon: e.Lon, Kind: stopKind(e.Tags), DistanceM: math.Round(DistanceM(lat, lon, e.Lat, e.Lon))}
		if prev, ok := byName[name]; ok && prev.DistanceM <= s.DistanceM {
			continue
		}
		byName[name] = s
	}
	out := make([]Stop, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DistanceM is the great-circle distance in meters.
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}
