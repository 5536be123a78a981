package overpass

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// areaSelector renders the query preamble and the per-statement filter for
// the chosen area: either a named administrative area or a bounding box.
func areaSelector(area Area) (preamble, filter string, err error) {
	if area.Name != "" {
		level := area.AdminLevel
		if level == 0 {
			level = 6
		}
		pre := fmt.Sprintf("area[\"name\"=%q][\"admin_level\"=\"%d\"]->.searchArea;\n", area.Name, level)
		return pre, "(area.searchArea)", nil
	}
	if area.BBox == nil {
		return "", "", eris.New("overpass: area needs a name or a bbox")
	}
	if err := area.BBox.Validate(); err != nil {
		return "", "", err
	}
	b := area.BBox
	return "", fmt.Sprintf("(%g,%g,%g,%g)", b.South, b.West, b.North, b.East), nil
}

// fitnessQuery matches the tag combinations mappers use for outdoor fitness
// stations: the dedicated leisure/amenity values, sport=fitness and a bare
// fitness key.
func fitnessQuery(area Area) (string, error) {
	pre, filter, err := areaSelector(area)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("[out:json][timeout:60];\n")
	sb.WriteString(pre)
	sb.WriteString("(\n")
	for _, clause := range []string{
		`node["leisure"="fitness_station"]`,
		`node["amenity"="fitness_station"]`,
		`node["sport"="fitness"]`,
		`node["fitness"]`,
		`way["leisure"="fitness_station"]`,
		`way["sport"="fitness"]`,
		`relation["leisure"="fitness_station"]`,
	} {
		sb.WriteString("  " + clause + filter + ";\n")
	}
	sb.WriteString(");\nout center meta;")
	return sb.String(), nil
}

// pitchesQuery matches pitches, stadiums and sports centres for the given
// sports (default soccer and football).
func pitchesQuery(area Area, sports []string) (string, error) {
	pre, filter, err := areaSelector(area)
	if err != nil {
		return "", err
	}
	if len(sports) == 0 {
		sports = []string{"soccer", "football"}
	}
	sportRe := fmt.Sprintf(`["sport"~"^(%s)$"]`, strings.Join(sports, "|"))

	var sb strings.Builder
	sb.WriteString("[out:json][timeout:120];\n")
	sb.WriteString(pre)
	sb.WriteString("(\n")
	for _, leisure := range []string{"pitch", "stadium", "sports_centre"} {
		for _, kind := range []string{"node", "way", "relation"} {
			sb.WriteString(fmt.Sprintf("  %s[\"leisure\"=%q]%s%s;\n", kind, leisure, sportRe, filter))
		}
	}
	sb.WriteString(");\nout tags center;")
	return sb.String(), nil
}

func parksQuery(area Area) (string, error) {
	pre, filter, err := areaSelector(area)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("[out:json][timeout:60];\n")
	sb.WriteString(pre)
	sb.WriteString("(\n")
	sb.WriteString(`  way["leisure"="park"]` + filter + ";\n")
	sb.WriteString(`  relation["leisure"="park"]` + filter + ";\n")
	sb.WriteString(");\nout center;")
	return sb.String(), nil
}
