package httpserver

import (
	"path"
	"strings"
	"sync"

	"go-events-query/internal/interfaces"
)

// Ensure redirectNavigator implements interfaces.Navigator
var _ interfaces.Navigator = (*redirectNavigator)(nil)

// redirectNavigator records the navigation requested while handling one
// request so it can be answered with a redirect
type redirectNavigator struct {
	base string

	mu     sync.Mutex
	target string
}

func newRedirectNavigator(base string) *redirectNavigator {
	return &redirectNavigator{base: base}
}

// Navigate records p, resolving relative paths against the request path
func (n *redirectNavigator) Navigate(p string) {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(n.base, p)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = p
}

// Target returns the last recorded navigation
func (n *redirectNavigator) Target() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target, n.target != ""
}
