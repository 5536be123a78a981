package overpass

import "strings"

var equipmentKeywords = []string{"pull_up", "parallel_bars", "bar", "calisthenics", "street_workout"}

var nameKeywords = []string{"calisthenics", "street workout", "klimmzug", "barren"}

// Confidence scores how likely an element's tags describe an outdoor
// calisthenics station. Primary tags carry most of the weight, equipment
// values and telling names add bonuses, capped at 1.0.
func Confidence(tags map[string]string) float64 {
	var confidence float64

	switch {
	case tags["leisure"] == "fitness_station":
		confidence += 0.8
	case tags["amenity"] == "fitness_station":
		confidence += 0.7
	case tags["sport"] == "fitness":
		confidence += 0.6
	}

	equipment := strings.ToLower(tags["fitness"])
	for _, kw := range equipmentKeywords {
		if strings.Contains(equipment, kw) {
			confidence += 0.1
		}
	}

	if tags["name"] != "" {
		confidence += 0.1
	}
	name := strings.ToLower(tags["name"])
	for _, kw := range nameKeywords {
		if strings.Contains(name, kw) {
			confidence += 0.2
			break
		}
	}

	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
