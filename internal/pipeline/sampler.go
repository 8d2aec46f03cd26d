package pipeline

// Sampler admits the first frame of every new second and rejects the rest.
type Sampler struct {
	last int
}

// NewSampler starts before second 0, so the first frame of the video is always admitted.
func NewSampler() *Sampler {
	return &Sampler{last: -1}
}

// Admit reports whether a frame at the given second should be evaluated.
func (s *Sampler) Admit(second int) bool {
	if second <= s.last {
		return false
	}
	s.last = second
	return true
}
