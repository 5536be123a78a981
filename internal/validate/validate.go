// Package validate cross-checks detected candidates against OpenStreetMap
// ground truth and adjusts suitability scores accordingly.
package validate

import (
	"math"

	"go.uber.org/zap"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

// Options tune the validation pass. Zero values take the defaults.
type Options struct {
	// MaxDistanceM is the match radius around a station. Default: 200.
	MaxDistanceM float64
	// Boost is added to matched candidates' scores. Default: 0.3.
	Boost float64
	// Cap limits the boosted score. Default: 0.95.
	Cap float64
	// Penalty multiplies unmatched candidates' scores. Default: 0.7.
	Penalty float64
	// MinScore drops candidates falling below it after adjustment. Default: 0.3.
	MinScore float64
}

func (o Options) withDefaults() Options {
	if o.MaxDistanceM == 0 {
		o.MaxDistanceM = 200
	}
	if o.Boost == 0 {
		o.Boost = 0.3
	}
	if o.Cap == 0 {
		o.Cap = 0.95
	}
	if o.Penalty == 0 {
		o.Penalty = 0.7
	}
	if o.MinScore == 0 {
		o.MinScore = 0.3
	}
	return o
}

// Summary tallies the outcome of one validation pass.
type Summary struct {
	Matched   int
	Penalized int
	Dropped   int
}

// Against matches each candidate to its nearest station. Matches within the
// radius are flagged validated and boosted; the rest are penalized. Anything
// scoring below MinScore afterwards is dropped.
func Against(candidates []detect.Candidate, stations []overpass.Station, opts Options) ([]detect.Candidate, Summary) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "validate"))

	var sum Summary
	kept := make([]detect.Candidate, 0, len(candidates))
	for _, c := range candidates {
		dist, nearest := nearestStation(c.Lat, c.Lon, stations)
		if nearest == nil {
			c.OSMDistanceM = -1
		} else {
			c.OSMDistanceM = dist
		}

		if nearest != nil && dist <= opts.MaxDistanceM {
			c.Validated = true
			c.OSMName = nearest.Name
			c.Score = math.Min(c.Score+opts.Boost, opts.Cap)
			sum.Matched++
		} else {
			c.Score *= opts.Penalty
			sum.Penalized++
		}

		if c.Score < opts.MinScore {
			sum.Dropped++
			continue
		}
		kept = append(kept, c)
	}

	log.Info("candidates validated",
		zap.Int("input", len(candidates)),
		zap.Int("matched", sum.Matched),
		zap.Int("dropped", sum.Dropped),
	)
	return kept, sum
}

// nearestStation returns the closest station and its haversine distance in
// meters. With no stations it returns +Inf and nil.
func nearestStation(lat, lon float64, stations []overpass.Station) (float64, *overpass.Station) {
	min := math.Inf(1)
	var nearest *overpass.Station
	for i := range stations {
		d := georef.Haversine(lat, lon, stations[i].Lat, stations[i].Lon)
		if d < min {
			min = d
			nearest = &stations[i]
		}
	}
	return min, nearest
}
