package overpass

// FallbackStations returns the builtin station list used when the Overpass
// API is unreachable. Coordinates are well-known Duesseldorf fitness spots.
func FallbackStations() []Station {
	return []Station{
		{
			OSMID:      -1,
			OSMType:    "node",
			Lat:        51.2186,
			Lon:        6.7711,
			Name:       "Volksgarten Fitness (Fallback)",
			Tags:       map[string]string{"leisure": "fitness_station"},
			Source:     "fallback",
			Confidence: 0.5,
		},
		{
			OSMID:      -2,
			OSMType:    "node",
			Lat:        51.2547,
			Lon:        6.7858,
			Name:       "Florapark Fitness (Fallback)",
			Tags:       map[string]string{"leisure": "fitness_station"},
			Source:     "fallback",
			Confidence: 0.5,
		},
	}
}
