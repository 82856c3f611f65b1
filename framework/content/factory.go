package content

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/km-arc/go-overlay/framework/dom"
)

// Component is a built UI fragment.
type Component interface {
	Element() *html.Node
}

// AuthorSetter is implemented by components that render an author.
type AuthorSetter interface {
	SetAuthor(Author)
}

// Destroyer is implemented by components that release resources.
type Destroyer interface {
	Destroy()
}

// ComponentFactory builds components by type name. config carries
// type-specific settings; "id" and "cache" are understood by Factory.
type ComponentFactory interface {
	CreateComponent(typeName string, config map[string]any) (Component, error)
}

// ComponentConstructor builds one component. id is unique per instance.
type ComponentConstructor func(id string, config map[string]any) (Component, error)

// Component type names registered by NewFactory.
const (
	TypeAuthor  = "author"
	TypeContent = "content"
)

// ── Factory ───────────────────────────────────────────────────────────────────

// Factory is the default ComponentFactory: a registry of constructors plus
// the instances created with config["cache"] set to true.
type Factory struct {
	mu           sync.Mutex
	constructors map[string]ComponentConstructor
	instances    map[string]Component
	logger       *zap.Logger
}

// NewFactory returns a factory with the author and content components
// registered.
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{
		constructors: make(map[string]ComponentConstructor),
		instances:    make(map[string]Component),
		logger:       logger,
	}
	f.RegisterComponent(TypeAuthor, NewAuthorComponent)
	f.RegisterComponent(TypeContent, NewBodyComponent)
	return f
}

// RegisterComponent adds or replaces the constructor for typeName.
func (f *Factory) RegisterComponent(typeName string, ctor ComponentConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.constructors[typeName]; exists {
		f.logger.Warn("component type already registered, overwriting", zap.String("type", typeName))
	}
	f.constructors[typeName] = ctor
}

// IsRegistered reports whether typeName has a constructor.
func (f *Factory) IsRegistered(typeName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.constructors[typeName]
	return ok
}

// CreateComponent builds a component of typeName. The instance ID is
// config["id"] when given, otherwise "<type>-<uuid>".
func (f *Factory) CreateComponent(typeName string, config map[string]any) (Component, error) {
	f.mu.Lock()
	ctor, ok := f.constructors[typeName]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("content: component type %q not registered", typeName)
	}

	id, _ := config["id"].(string)
	if id == "" {
		id = typeName + "-" + uuid.NewString()
	}

	comp, err := ctor(id, config)
	if err != nil {
		return nil, fmt.Errorf("content: failed to create component %s: %w", typeName, err)
	}
	if comp == nil {
		return nil, fmt.Errorf("content: constructor for %s returned no component", typeName)
	}

	if cache, _ := config["cache"].(bool); cache {
		f.mu.Lock()
		f.instances[id] = comp
		f.mu.Unlock()
	}
	return comp, nil
}

// GetComponent returns a cached instance by ID.
func (f *Factory) GetComponent(id string) (Component, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.instances[id]
	return c, ok
}

// DestroyComponent destroys and forgets a cached instance.
func (f *Factory) DestroyComponent(id string) {
	f.mu.Lock()
	c, ok := f.instances[id]
	delete(f.instances, id)
	f.mu.Unlock()

	if d, isDestroyer := c.(Destroyer); ok && isDestroyer {
		d.Destroy()
	}
}

// Destroy destroys every cached instance.
func (f *Factory) Destroy() {
	f.mu.Lock()
	instances := f.instances
	f.instances = make(map[string]Component)
	f.mu.Unlock()

	for _, c := range instances {
		if d, ok := c.(Destroyer); ok {
			d.Destroy()
		}
	}
}

// ── Built-in components ───────────────────────────────────────────────────────

// AuthorComponent renders an author block.
type AuthorComponent struct {
	id string
	el *html.Node
}

// NewAuthorComponent is the constructor of the "author" type.
func NewAuthorComponent(id string, _ map[string]any) (Component, error) {
	el := dom.NewElement("div", "author")
	dom.SetData(el, "componentId", id)
	return &AuthorComponent{id: id, el: el}, nil
}

func (a *AuthorComponent) ID() string          { return a.id }
func (a *AuthorComponent) Element() *html.Node { return a.el }

// SetAuthor re-renders the block for au.
func (a *AuthorComponent) SetAuthor(au Author) {
	dom.SetText(a.el, "")

	if au.AvatarURL != "" {
		img := dom.NewElement("img", "author-avatar")
		dom.SetAttr(img, "src", au.AvatarURL)
		dom.SetAttr(img, "alt", "")
		dom.Append(a.el, img)
	}

	name := dom.NewElement("span", "author-name")
	dom.SetText(name, displayName(au))
	dom.Append(a.el, name)

	if au.Username != "" {
		handle := dom.NewElement("span", "author-username")
		dom.SetText(handle, "@"+au.Username)
		dom.Append(a.el, handle)
	}
	if au.Verified {
		badge := dom.NewElement("span", "author-verified")
		dom.SetAttr(badge, "aria-label", "Verified")
		dom.Append(a.el, badge)
	}
}

// BodyComponent renders the text of a piece of content.
type BodyComponent struct {
	id string
	el *html.Node
}

// NewBodyComponent is the constructor of the "content" type. It reads
// config["text"].
func NewBodyComponent(id string, config map[string]any) (Component, error) {
	text, _ := config["text"].(string)
	el := dom.NewElement("div", "content")
	dom.SetText(el, text)
	return &BodyComponent{id: id, el: el}, nil
}

func (b *BodyComponent) ID() string          { return b.id }
func (b *BodyComponent) Element() *html.Node { return b.el }

func displayName(au Author) string {
	if au.Name == "" {
		return "Unknown"
	}
	return au.Name
}
