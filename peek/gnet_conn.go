package peek

// gnetConnContext is the per-connection state kept between OnTraffic calls.
type gnetConnContext struct {
	scanner    *headerScanner
	dispatched bool
}

func newGNetConnContext(probeSize, maxBytes int) *gnetConnContext {
	return &gnetConnContext{scanner: newHeaderScanner(probeSize, maxBytes)}
}

func (g *gnetConnContext) reset() {
	g.scanner.reset()
	g.dispatched = false
}
