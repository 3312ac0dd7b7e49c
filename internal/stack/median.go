package stack

// Returns the median pixel value of the sample.
//
// Selection runs in O(n) on average via quickselect. The algorithm
// reorders its input, so it operates on a private copy; the caller's
// slice is never modified. An empty sample yields zero.
func Median(sample []uint16) uint16 {
	if len(sample) == 0 {
		return 0
	}

	work := make([]uint16, len(sample))
	copy(work, sample)

	return quickselect(work, len(work)/2)
}

// Hoare-style selection of the k-th order statistic.
//
// Repeatedly partitions around a median-of-three pivot and recurses (by
// iteration) into the half that still contains index k.
func quickselect(arr []uint16, k int) uint16 {
	low := 0
	high := len(arr) - 1

	for {
		if high <= low {
			return arr[k]
		}

		if high == low+1 {
			if arr[low] > arr[high] {
				arr[low], arr[high] = arr[high], arr[low]
			}
			return arr[k]
		}

		// Median of low, middle, and high, swapped into position low.
		middle := (low + high) / 2
		if arr[middle] > arr[high] {
			arr[middle], arr[high] = arr[high], arr[middle]
		}
		if arr[low] > arr[high] {
			arr[low], arr[high] = arr[high], arr[low]
		}
		if arr[middle] > arr[low] {
			arr[middle], arr[low] = arr[low], arr[middle]
		}

		arr[middle], arr[low+1] = arr[low+1], arr[middle]

		// Nibble from both ends toward the middle, swapping items
		// that are on the wrong side of the pivot.
		ll := low + 1
		hh := high
		for {
			ll++
			for arr[low] > arr[ll] {
				ll++
			}
			hh--
			for arr[hh] > arr[low] {
				hh--
			}

			if hh < ll {
				break
			}

			arr[ll], arr[hh] = arr[hh], arr[ll]
		}

		// Put the pivot back into its settled position.
		arr[low], arr[hh] = arr[hh], arr[low]

		if hh <= k {
			low = ll
		}
		if hh >= k {
			high = hh - 1
		}
	}
}
