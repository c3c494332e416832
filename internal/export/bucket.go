package export

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"
)

// Bucket groups readings into fixed time buckets and aggregates each key with
// the given method. Keys not matching includeKeys (when non-empty) are
// dropped. Supported methods: min, max, avg, first, last, pct95, pct99.
func Bucket(readings []Reading, period time.Duration, method string, includeKeys string) ([]Reading, error) {
	if period <= 0 {
		return nil, fmt.Errorf("bucket period must be positive")
	}

	var include *regexp.Regexp
	if includeKeys != "" {
		var err error
		include, err = regexp.Compile(includeKeys)
		if err != nil {
			return nil, fmt.Errorf("invalid include keys pattern: %w", err)
		}
	}

	buckets := make(map[time.Time]map[string][]float64)
	for _, r := range readings {
		bucket := r.TimeReceived.Truncate(period)
		values, ok := buckets[bucket]
		if !ok {
			values = make(map[string][]float64)
			buckets[bucket] = values
		}
		for key, value := range r.Readings {
			if include != nil && !include.MatchString(key) {
				continue
			}
			values[key] = append(values[key], value)
		}
	}

	out := make([]Reading, 0, len(buckets))
	for bucket, values := range buckets {
		aggregated := make(map[string]float64, len(values))
		for key, vs := range values {
			v, err := aggregate(vs, method)
			if err != nil {
				return nil, err
			}
			aggregated[key] = v
		}
		out = append(out, Reading{TimeReceived: bucket, Readings: aggregated})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].TimeReceived.Before(out[j].TimeReceived)
	})
	return out, nil
}

func aggregate(values []float64, method string) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("empty bucket")
	}
	switch method {
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m, nil
	case "max":
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m, nil
	case "avg":
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case "first":
		return values[0], nil
	case "last":
		return values[len(values)-1], nil
	case "pct95":
		return percentile(values, 95), nil
	case "pct99":
		return percentile(values, 99), nil
	default:
		return 0, fmt.Errorf("unsupported bucket method: %s", method)
	}
}

// percentile computes the p-th percentile with linear interpolation between
// the two nearest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
