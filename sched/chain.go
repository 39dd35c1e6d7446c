package sched

// ChainSync queues an ordered list of synchronous steps under one tag.
// Each step runs on its own scheduler turn, then final runs on the turn
// after the last step. Canceling the tag stops the chain at the next
// turn boundary.
func (s *Scheduler) ChainSync(tag string, steps []func(), final func()) {
	var advance func(i int)
	advance = func(i int) {
		if i >= len(steps) {
			if final != nil {
				final()
			}
			return
		}
		steps[i]()
		s.Defer(tag, func() { advance(i + 1) })
	}
	s.Defer(tag, func() { advance(0) })
}

// ChainAsync is ChainSync for steps that finish asynchronously: each step
// receives a continuation and the next step is deferred only once it is
// called. The continuation may be invoked from any goroutine.
func (s *Scheduler) ChainAsync(tag string, steps []func(next func()), final func()) {
	var advance func(i int)
	advance = func(i int) {
		if i >= len(steps) {
			if final != nil {
				final()
			}
			return
		}
		steps[i](func() {
			s.Defer(tag, func() { advance(i + 1) })
		})
	}
	s.Defer(tag, func() { advance(0) })
}
