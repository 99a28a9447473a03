package service

import (
	"strings"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

// RwandaCities are approximate city centres used to place hotspots on the
// dashboard map.
var RwandaCities = map[string]models.Coordinates{
	"Kigali":    {Lat: -1.9536, Lng: 30.0606, Name: "Kigali"},
	"Gisenyi":   {Lat: -1.7025, Lng: 29.2560, Name: "Gisenyi"},
	"Butare":    {Lat: -2.5967, Lng: 29.7389, Name: "Butare"},
	"Musanze":   {Lat: -1.4983, Lng: 29.6344, Name: "Musanze"},
	"Nyanza":    {Lat: -2.3531, Lng: 29.7500, Name: "Nyanza"},
	"Rwamagana": {Lat: -1.9489, Lng: 30.4347, Name: "Rwamagana"},
	"Kibungo":   {Lat: -2.1603, Lng: 30.5419, Name: "Kibungo"},
	"Kibuye":    {Lat: -2.0603, Lng: 29.3478, Name: "Kibuye"},
	"Byumba":    {Lat: -1.5767, Lng: 30.0669, Name: "Byumba"},
	"Gitarama":  {Lat: -2.0736, Lng: 29.7572, Name: "Gitarama"},
}

// coordinateIndex looks locations up ignoring case and surrounding space.
type coordinateIndex map[string]models.Coordinates

func newCoordinateIndex(src map[string]models.Coordinates) coordinateIndex {
	idx := make(coordinateIndex, len(src))
	for name, c := range src {
		idx[normalizeLocation(name)] = c
	}
	return idx
}

func (idx coordinateIndex) lookup(location string) *models.Coordinates {
	c, ok := idx[normalizeLocation(location)]
	if !ok {
		return nil
	}
	return &c
}

func normalizeLocation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
