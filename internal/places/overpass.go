package places

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Overpass queries OpenStreetMap through the Overpass API. No key needed.
type Overpass struct {
	// BaseURL defaults to the public interpreter endpoint.
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (o *Overpass) Name() string { return "OpenStreetMap" }

// osmTag maps a place type to the OSM key that carries it.
var osmTag = map[string][2]string{
	"museum":           {"tourism", "museum"},
	"gallery":          {"tourism", "gallery"},
	"hotel":            {"tourism", "hotel"},
	"hostel":           {"tourism", "hostel"},
	"guest_house":      {"tourism", "guest_house"},
	"viewpoint":        {"tourism", "viewpoint"},
	"amusement_park":   {"tourism", "theme_park"},
	"park":             {"leisure", "park"},
	"garden":           {"leisure", "garden"},
	"natural_reserve":  {"leisure", "nature_reserve"},
	"mall":             {"shop", "mall"},
	"department_store": {"shop", "department_store"},
	"shop":             {"shop", "yes"},
	"market":           {"amenity", "marketplace"},
}

// OverpassQL builds the query for q: nodes, ways and relations tagged with
// the place type inside the radius, ways reported by their center.
func OverpassQL(q Query) string {
	key, val := "amenity", q.PlaceType
	if t, ok := osmTag[q.PlaceType]; ok {
		key, val = t[0], t[1]
	}
	filter := fmt.Sprintf("[%q=%q]", key, val)
	if val == "yes" {
		filter = fmt.Sprintf("[%q]", key)
	}
	return fmt.Sprintf("[out:json][timeout:25];nwr(around:%d,%f,%f)%s;out center %d;", q.RadiusM, q.Lat, q.Lon, filter, q.Limit*3)
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type overpassResponse struct {
	Elements []struct {
		Type   string            `json:"type"`
		Lat    float64           `json:"lat"`
		Lon    float64           `json:"lon"`
		Center *overpassCenter   `json:"center"`
		Tags   map[string]string `json:"tags"`
	} `json:"elements"`
}

// Search implements Source.
func (o *Overpass) Search(ctx context.Context, q Query) ([]Place, error) {
	q = q.withDefaults()
	base := o.BaseURL
	if base == "" {
		base = "https://overpass-api.de/api/interpreter"
	}
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	var resp overpassResponse
	if err := getJSON(ctx, o.HTTPClient, base+"?data="+url.QueryEscape(OverpassQL(q)), ua, &resp); err != nil {
		return nil, fmt.Errorf("overpass: %w", err)
	}
	out := make([]Place, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		t := e.Tags
		name := t["name"]
		if name == "" {
			continue
		}
		lat, lon := e.Lat, e.Lon
		if e.Center != nil {
			lat, lon = e.Center.Lat, e.Center.Lon
		}
		website := t["website"]
		if website == "" {
			website = t["contact:website"]
		}
		phone := t["phone"]
		if phone == "" {
			phone = t["contact:phone"]
		}
		out = append(out, Place{
			Name:           name,
			Lat:            lat,
			Lon:            lon,
			Type:           q.PlaceType,
			Cuisine:        t["cuisine"],
			Description:    t["description"],
			Website:        website,
			Phone:          phone,
			OpeningHours:   t["opening_hours"],
			Address:        joinAddress(t["addr:street"], t["addr:housenumber"]),
			City:           t["addr:city"],
			Wheelchair:     t["wheelchair"],
			OutdoorSeating: t["outdoor_seating"],
			Delivery:       t["delivery"],
			Takeaway:       t["takeaway"],
			InternetAccess: t["internet_access"],
			Smoking:        t["smoking"],
			Source:         o.Name(),
		})
	}
	return out, nil
}

func joinAddress(street, number string) string {
	if street == "" || number == "" {
		return street
	}
	return street + " " + number
}
