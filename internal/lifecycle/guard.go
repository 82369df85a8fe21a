// Package lifecycle tracks the release state of single-owner resources such
// as streams and collectors.
package lifecycle

import "fmt"

// Guard records whether the resource that embeds it has been released. The
// zero value is a live guard.
//
// A Guard is not safe for concurrent use. Neither are the resources that
// embed one.
type Guard struct {
	released bool
}

// Check panics if the guard has been released. The name identifies the
// resource kind in the panic message.
func (g *Guard) Check(name string) {
	if g.released {
		panic(fmt.Sprintf("use of closed %s", name))
	}
}

// Release marks the guard as released. It reports false if the guard had
// already been released, in which case the caller should not release any
// underlying resources a second time.
func (g *Guard) Release() bool {
	if g.released {
		return false
	}
	g.released = true
	return true
}

// Released reports whether Release has been called.
func (g *Guard) Released() bool {
	return g.released
}
