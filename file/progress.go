package file

// progressThrottle forwards segment progress to a callback every interval
// segments, never moving backwards.
type progressThrottle struct {
	interval  int
	callback  ProgressFunc
	lastTotal int
	emitted   int
	finished  bool
}

func newProgressThrottle(interval int, callback ProgressFunc) *progressThrottle {
	if interval < 1 {
		interval = 1
	}
	return &progressThrottle{interval: interval, callback: callback, emitted: -1}
}

// report receives every segment update from the channel.
func (p *progressThrottle) report(current, total int) {
	if total < 1 {
		return
	}
	if current > total {
		current = total
	}
	p.lastTotal = total
	if current <= p.emitted {
		return
	}
	if current != total && current%p.interval != 0 {
		return
	}
	p.emit(current, total)
}

// finish delivers the final (total, total) unless report already did.
func (p *progressThrottle) finish() {
	if p.finished {
		return
	}
	total := p.lastTotal
	if total < 1 {
		total = 1
	}
	p.emit(total, total)
}

func (p *progressThrottle) emit(current, total int) {
	p.emitted = current
	if current == total {
		p.finished = true
	}
	if p.callback != nil {
		p.callback(current, total)
	}
}
