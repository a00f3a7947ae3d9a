package downsample

import "sort"

// uniform picks n evenly strided indices including both ends
func uniform(size, n int) []int {
	out := make([]int, n)
	for k := 0; k < n; k++ {
		out[k] = k * (size - 1) / (n - 1)
	}
	return out
}

// minmax keeps the minimum and maximum of each of (n-2)/2 interior
// buckets. Equal values keep the earlier index.
func minmax(values []float64, n int) []int {
	size := len(values)
	interior := size - 2
	buckets := (n - 2) / 2

	picked := []int{0, size - 1}
	for b := 0; b < buckets; b++ {
		lo := 1 + b*interior/buckets
		hi := 1 + (b+1)*interior/buckets
		minIdx, maxIdx := lo, lo
		for j := lo + 1; j < hi; j++ {
			if values[j] < values[minIdx] {
				minIdx = j
			}
			if values[j] > values[maxIdx] {
				maxIdx = j
			}
		}
		picked = append(picked, minIdx)
		if maxIdx != minIdx {
			picked = append(picked, maxIdx)
		}
	}
	return topUp(picked, size, n)
}

// topUp sorts picked and adds evenly spaced unpicked indices until it
// holds exactly n entries. picked must not contain duplicates.
func topUp(picked []int, size, n int) []int {
	sort.Ints(picked)
	need := n - len(picked)
	if need <= 0 {
		return picked[:n]
	}

	taken := make([]bool, size)
	for _, i := range picked {
		taken[i] = true
	}
	free := make([]int, 0, size-len(picked))
	for i, ok := range taken {
		if !ok {
			free = append(free, i)
		}
	}

	for k := 0; k < need; k++ {
		picked = append(picked, free[(2*k+1)*len(free)/(2*need)])
	}
	sort.Ints(picked)
	return picked
}
