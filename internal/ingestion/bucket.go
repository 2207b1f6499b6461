package ingestion

import (
	"sort"
	"time"
)

// AggregateBuckets groups readings into fixed-width time buckets and
// produces one synthetic reading per non-empty bucket. Bucket start is
// floor(unix_seconds / width) * width with the Unix epoch as anchor, so
// the same dataset always lands on the same boundaries regardless of
// the queried range.
//
// Soil moisture and temperature aggregate to the arithmetic mean of
// non-nil values; precipitation aggregates to the sum of non-nil
// values. Buckets with no readings are omitted. Synthetic rows carry id
// 0, origin "aggregated", and nil device/correlation fields.
func AggregateBuckets(readings []SensorReading, bucketMinutes int) []SensorReading {
	if bucketMinutes <= 0 {
		return readings
	}

	width := int64(bucketMinutes) * 60

	type bucketAcc struct {
		first         SensorReading
		moistureSum   float64
		moistureCount int
		tempSum       float64
		tempCount     int
		precipSum     float64
		precipCount   int
	}

	buckets := make(map[int64]*bucketAcc)
	for _, r := range readings {
		start := r.CapturedAt.UTC().Unix() / width * width
		acc, ok := buckets[start]
		if !ok {
			acc = &bucketAcc{first: r}
			buckets[start] = acc
		}
		if r.SoilMoisturePct != nil {
			acc.moistureSum += *r.SoilMoisturePct
			acc.moistureCount++
		}
		if r.TemperatureC != nil {
			acc.tempSum += *r.TemperatureC
			acc.tempCount++
		}
		if r.PrecipitationMm != nil {
			acc.precipSum += *r.PrecipitationMm
			acc.precipCount++
		}
	}

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	out := make([]SensorReading, 0, len(starts))
	for _, start := range starts {
		acc := buckets[start]
		row := SensorReading{
			ID:         0,
			PropertyID: acc.first.PropertyID,
			FieldID:    acc.first.FieldID,
			Origin:     OriginAggregated,
			CapturedAt: time.Unix(start, 0).UTC(),
		}
		if acc.moistureCount > 0 {
			mean := acc.moistureSum / float64(acc.moistureCount)
			row.SoilMoisturePct = &mean
		}
		if acc.tempCount > 0 {
			mean := acc.tempSum / float64(acc.tempCount)
			row.TemperatureC = &mean
		}
		if acc.precipCount > 0 {
			sum := acc.precipSum
			row.PrecipitationMm = &sum
		}
		out = append(out, row)
	}
	return out
}
