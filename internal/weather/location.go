package weather

import (
	"fmt"
	"sort"
	"strings"
)

// Location is a named point the feed can be queried for.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DefaultLocations is the built-in city table.
func DefaultLocations() []Location {
	return []Location{
		{Name: "NEW YORK", Latitude: 40.7128, Longitude: -74.0060},
		{Name: "LONDON", Latitude: 51.5072, Longitude: -0.1276},
		{Name: "TOKYO", Latitude: 35.6895, Longitude: 139.6917},
		{Name: "BERLIN", Latitude: 52.5200, Longitude: 13.4050},
		{Name: "SYDNEY", Latitude: -33.8688, Longitude: 151.2093},
		{Name: "MUMBAI", Latitude: 19.0760, Longitude: 72.8777},
		{Name: "SAO PAULO", Latitude: -23.5505, Longitude: -46.6333},
		{Name: "CAPE TOWN", Latitude: -33.9249, Longitude: 18.4241},
	}
}

// Registry resolves location names to coordinates. Names are case-insensitive.
type Registry struct {
	byName map[string]Location
}

// NewRegistry builds a registry, rejecting blank or duplicate names.
func NewRegistry(locations []Location) (*Registry, error) {
	r := &Registry{byName: make(map[string]Location, len(locations))}
	for _, loc := range locations {
		key := NormalizeName(loc.Name)
		if key == "" {
			return nil, fmt.Errorf("location name must not be empty")
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate location %q", key)
		}
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return nil, fmt.Errorf("location %q has out-of-range coordinates", key)
		}
		loc.Name = key
		r.byName[key] = loc
	}
	return r, nil
}

// Lookup finds a location by name.
func (r *Registry) Lookup(name string) (Location, error) {
	loc, ok := r.byName[NormalizeName(name)]
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrUnknownLocation, name)
	}
	return loc, nil
}

// All returns the registered locations sorted by name.
func (r *Registry) All() []Location {
	out := make([]Location, 0, len(r.byName))
	for _, loc := range r.byName {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NormalizeName upper-cases and trims a location name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
