package content

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"
)

// Event names consumed and published by the Manager.
const (
	EventContentSelected = "content:selected"
	EventThemeChanged    = "theme:changed"

	EventInitialized  = "contentManager:initialized"
	EventCreating     = "content:creating"
	EventCreated      = "content:created"
	EventError        = "content:error"
	EventThemeApplied = "content:themeApplied"
)

// Service names the Manager looks up on the bus.
const (
	FactoryServiceID       = "componentFactory"
	LegacyFactoryServiceID = "UIComponentFactory"
	ManagerServiceID       = "markerContentManager"
)

var (
	// ErrMissingID is returned for a payload with neither ID nor PostID.
	ErrMissingID = errors.New("content: payload has no id")

	// ErrBusRequired is returned by NewManager without a bus.
	ErrBusRequired = errors.New("content: event bus is required")
)

// Author identifies who wrote a piece of content.
type Author struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	Verified  bool   `json:"verified"`
}

// Payload is one piece of externally keyed content.
type Payload struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
	Text   string `json:"text"`
	Author Author `json:"author"`
}

// Key returns the cache key: ID, or PostID when ID is empty.
func (p Payload) Key() (string, error) {
	switch {
	case p.ID != "":
		return p.ID, nil
	case p.PostID != "":
		return p.PostID, nil
	default:
		return "", ErrMissingID
	}
}

// Lifecycle is the payload of the creating, created and error events.
type Lifecycle struct {
	Content *html.Node
	Payload Payload
	Err     error
	Manager *Manager
}

// ThemeChange is the payload expected on EventThemeChanged.
type ThemeChange struct {
	Theme string `json:"theme"`
}

// ThemeApplied is the payload of EventThemeApplied.
type ThemeApplied struct {
	Theme   string
	Content *html.Node
	Manager *Manager
}

// BuildError reports a failed build of the mandatory part of a subtree.
type BuildError struct {
	Key  string
	Part string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("content: building %s for %q: %v", e.Part, e.Key, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
