// Package command maps protocol requests onto the browser Capability
// interface. The dispatch table is fixed at construction; every handler
// failure is converted to an error response at this boundary, with the one
// deliberate exception of in-page eval errors, which come back as string
// results so script authors can inspect their own failures.
package command

import "context"

// Capability is the set of browser-driving operations the command layer
// consumes but does not implement. A single page backs all of them, which is
// why command dispatch must stay serialized.
type Capability interface {
	// Evaluate runs raw script text in the page's global scope and returns
	// the resulting value. A thrown in-page exception surfaces as an error.
	Evaluate(ctx context.Context, script string) (interface{}, error)
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Type inserts text into the first element matching selector.
	Type(ctx context.Context, selector, text string) error
	// Screenshot captures the page to path and returns the saved path.
	Screenshot(ctx context.Context, path string) (string, error)
	// CurrentURL returns the page's current URL.
	CurrentURL(ctx context.Context) (string, error)
	// Reload reloads the page.
	Reload(ctx context.Context) error
}
