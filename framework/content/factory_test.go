package content_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/km-arc/go-overlay/framework/content"
	"github.com/km-arc/go-overlay/framework/dom"
)

type destroyable struct {
	el        *html.Node
	destroyed bool
}

func (d *destroyable) Element() *html.Node { return d.el }
func (d *destroyable) Destroy()            { d.destroyed = true }

func TestFactory_BuiltinTypes(t *testing.T) {
	f := content.NewFactory(zaptest.NewLogger(t))
	require.True(t, f.IsRegistered(content.TypeAuthor))
	require.True(t, f.IsRegistered(content.TypeContent))
	require.False(t, f.IsRegistered("chart"))

	_, err := f.CreateComponent("chart", nil)
	require.ErrorContains(t, err, `"chart" not registered`)
}

func TestFactory_GeneratedIDs(t *testing.T) {
	f := content.NewFactory(zaptest.NewLogger(t))

	a, err := f.CreateComponent(content.TypeAuthor, nil)
	require.NoError(t, err)
	b, err := f.CreateComponent(content.TypeAuthor, nil)
	require.NoError(t, err)

	idA, _ := dom.Data(a.Element(), "componentId")
	idB, _ := dom.Data(b.Element(), "componentId")
	require.True(t, strings.HasPrefix(idA, "author-"))
	require.NotEqual(t, idA, idB)
}

func TestFactory_CachesOnlyWhenAsked(t *testing.T) {
	f := content.NewFactory(zaptest.NewLogger(t))

	_, err := f.CreateComponent(content.TypeContent, map[string]any{"id": "c1"})
	require.NoError(t, err)
	_, ok := f.GetComponent("c1")
	require.False(t, ok)

	comp, err := f.CreateComponent(content.TypeContent, map[string]any{"id": "c2", "cache": true})
	require.NoError(t, err)
	cached, ok := f.GetComponent("c2")
	require.True(t, ok)
	require.Same(t, comp, cached)
}

func TestFactory_ConstructorErrors(t *testing.T) {
	f := content.NewFactory(zaptest.NewLogger(t))
	boom := errors.New("boom")
	f.RegisterComponent("broken", func(string, map[string]any) (content.Component, error) { return nil, boom })
	f.RegisterComponent("empty", func(string, map[string]any) (content.Component, error) { return nil, nil })

	_, err := f.CreateComponent("broken", nil)
	require.ErrorIs(t, err, boom)

	_, err = f.CreateComponent("empty", nil)
	require.ErrorContains(t, err, "returned no component")
}

func TestFactory_Destroy(t *testing.T) {
	f := content.NewFactory(zaptest.NewLogger(t))
	var built []*destroyable
	f.RegisterComponent("widget", func(string, map[string]any) (content.Component, error) {
		d := &destroyable{el: dom.NewElement("div")}
		built = append(built, d)
		return d, nil
	})

	_, _ = f.CreateComponent("widget", map[string]any{"id": "w1", "cache": true})
	_, _ = f.CreateComponent("widget", map[string]any{"id": "w2", "cache": true})

	f.DestroyComponent("w1")
	require.True(t, built[0].destroyed)
	require.False(t, built[1].destroyed)
	_, ok := f.GetComponent("w1")
	require.False(t, ok)

	f.DestroyComponent("missing")

	f.Destroy()
	require.True(t, built[1].destroyed)
	_, ok = f.GetComponent("w2")
	require.False(t, ok)
}

func TestAuthorComponent_SetAuthor(t *testing.T) {
	comp, err := content.NewAuthorComponent("author-1", nil)
	require.NoError(t, err)
	setter := comp.(content.AuthorSetter)

	setter.SetAuthor(content.Author{Name: "Ada", Username: "ada", AvatarURL: "https://x/a.png", Verified: true})
	out, err := dom.Render(comp.Element())
	require.NoError(t, err)
	require.Equal(t,
		`<div class="author" data-component-id="author-1">`+
			`<img class="author-avatar" src="https://x/a.png" alt=""/>`+
			`<span class="author-name">Ada</span>`+
			`<span class="author-username">@ada</span>`+
			`<span class="author-verified" aria-label="Verified"></span>`+
			`</div>`,
		out)

	// Re-rendering replaces the previous author.
	setter.SetAuthor(content.Author{})
	require.Equal(t, "Unknown", dom.Text(comp.Element()))
}
