package sandbox

// keySet is an insertion ordered set of property names.
type keySet struct {
	order []string
	index map[string]int
}

func newKeySet() *keySet {
	return &keySet{index: make(map[string]int)}
}

func (s *keySet) add(key string) {
	if _, ok := s.index[key]; ok {
		return
	}
	s.index[key] = len(s.order)
	s.order = append(s.order, key)
}

func (s *keySet) has(key string) bool {
	_, ok := s.index[key]
	return ok
}

func (s *keySet) remove(key string) {
	i, ok := s.index[key]
	if !ok {
		return
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
}

func (s *keySet) keys() []string {
	return append([]string(nil), s.order...)
}

func (s *keySet) len() int { return len(s.order) }

func (s *keySet) clear() {
	s.order = nil
	s.index = make(map[string]int)
}
