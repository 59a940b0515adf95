package llm

import "math"

// TargetDims is the stored embedding width. Provider vectors wider than this
// are reduced so every model shares one index.
const TargetDims = 384

// Projector reduces an embedding vector to a fixed width.
type Projector interface {
	Project(vec []float32) []float32
}

// BucketProjector averages contiguous buckets of the input vector down to
// dims entries and renormalizes to unit length. Vectors already at or below
// dims pass through unchanged.
type BucketProjector struct {
	dims int
}

func NewBucketProjector(dims int) *BucketProjector {
	if dims <= 0 {
		dims = TargetDims
	}
	return &BucketProjector{dims: dims}
}

func (p *BucketProjector) Project(vec []float32) []float32 {
	if len(vec) <= p.dims {
		return vec
	}

	out := make([]float32, p.dims)
	bucket := float64(len(vec)) / float64(p.dims)
	for i := 0; i < p.dims; i++ {
		start := int(float64(i) * bucket)
		end := int(float64(i+1) * bucket)
		if end > len(vec) {
			end = len(vec)
		}
		if end <= start {
			end = start + 1
		}
		var sum float64
		for _, v := range vec[start:end] {
			sum += float64(v)
		}
		out[i] = float32(sum / float64(end-start))
	}
	return normalize(out)
}

// normalize scales vec to unit length in place. The zero vector is returned
// untouched.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
