package detector

// historyCapacity bounds the rolling sample window per (host, metric) series.
const historyCapacity = 60

// metricHistory is a bounded rolling window of samples for one
// (host, metric_key) series. Oldest samples are evicted first.
type metricHistory struct {
	samples []float64
	start   int
	count   int
}

func newMetricHistory() *metricHistory {
	return &metricHistory{
		samples: make([]float64, historyCapacity),
	}
}

// Add appends a sample, evicting the oldest when the window is full.
func (h *metricHistory) Add(value float64) {
	if h.count < historyCapacity {
		h.samples[(h.start+h.count)%historyCapacity] = value
		h.count++
		return
	}
	h.samples[h.start] = value
	h.start = (h.start + 1) % historyCapacity
}

// Len returns the number of stored samples.
func (h *metricHistory) Len() int {
	return h.count
}

// Baseline returns the mean of all samples excluding the most recent
// `exclude` ones. Returns false when no samples remain after exclusion.
func (h *metricHistory) Baseline(exclude int) (float64, bool) {
	n := h.count - exclude
	if n <= 0 {
		return 0, false
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += h.samples[(h.start+i)%historyCapacity]
	}
	return sum / float64(n), true
}
