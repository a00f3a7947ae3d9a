package downsample

import "math"

// lttb selects n indices by Largest-Triangle-Three-Buckets. The interior
// is split into n-2 buckets; each keeps the point forming the largest
// triangle with the previously kept point and the mean of the next bucket.
// Ties keep the earlier index.
func lttb(values, t []float64, n int) []int {
	size := len(values)
	out := make([]int, 0, n)
	out = append(out, 0)
	if n == 2 {
		return append(out, size-1)
	}

	every := float64(size-2) / float64(n-2)
	a := 0

	for i := 0; i < n-2; i++ {
		avgStart := int(math.Floor(float64(i+1)*every)) + 1
		avgEnd := int(math.Floor(float64(i+2)*every)) + 1
		if avgEnd > size {
			avgEnd = size
		}

		var avgX, avgY float64
		for j := avgStart; j < avgEnd; j++ {
			avgX += t[j]
			avgY += values[j]
		}
		count := float64(avgEnd - avgStart)
		avgX /= count
		avgY /= count

		rangeStart := int(math.Floor(float64(i)*every)) + 1
		rangeEnd := int(math.Floor(float64(i+1)*every)) + 1

		ax, ay := t[a], values[a]
		maxArea := -1.0
		next := rangeStart
		for j := rangeStart; j < rangeEnd; j++ {
			area := math.Abs((ax-avgX)*(values[j]-ay)-(ax-t[j])*(avgY-ay)) / 2
			if area > maxArea {
				maxArea = area
				next = j
			}
		}

		out = append(out, next)
		a = next
	}
	return append(out, size-1)
}
