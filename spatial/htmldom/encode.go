package htmldom

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/tvshell/spatial"
)

// Capture is a page state to be written as a layout snapshot.
type Capture struct {
	Root     *spatial.Node
	Facts    map[spatial.NodeID]spatial.Facts
	Focus    spatial.NodeID // deepest active element, 0 for none
	Viewport spatial.Size
}

// skipped tags carry nothing the engine reads.
var skipped = map[string]bool{
	"script": true, "style": true, "link": true, "meta": true,
	"noscript": true, "template": true, "svg": true, "head": true,
}

// Encode writes c as HTML that Parse reads back into an equivalent page.
func Encode(w io.Writer, c Capture) error {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	var add func(dst *html.Node, src *spatial.Node)
	add = func(dst *html.Node, src *spatial.Node) {
		for _, child := range src.Children {
			if child.Tag == "" || skipped[child.Tag] {
				continue
			}
			el := &html.Node{Type: html.ElementNode, Data: child.Tag, Attr: encodeAttrs(child, c)}
			if child.Tag == "html" {
				el.Attr = append(el.Attr, html.Attribute{
					Key: "data-tv-viewport",
					Val: fmt.Sprintf("%s %s", num(c.Viewport.Width), num(c.Viewport.Height)),
				})
			}
			if child.Shadow != nil {
				tpl := &html.Node{Type: html.ElementNode, Data: "template",
					Attr: []html.Attribute{{Key: "shadowrootmode", Val: "open"}}}
				add(tpl, child.Shadow)
				el.AppendChild(tpl)
			}
			add(el, child)
			dst.AppendChild(el)
		}
	}
	if c.Root == nil {
		return fmt.Errorf("htmldom: encode: no root")
	}
	add(doc, c.Root)

	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("htmldom: encode: %w", err)
	}
	return nil
}

func encodeAttrs(n *spatial.Node, c Capture) []html.Attribute {
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		// Recorded facts replace whatever a previous capture left behind.
		if strings.HasPrefix(k, "data-tv-") {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	attrs := make([]html.Attribute, 0, len(keys)+4)
	for _, k := range keys {
		attrs = append(attrs, html.Attribute{Key: k, Val: n.Attrs[k]})
	}

	if f, ok := c.Facts[n.ID]; ok {
		r := f.Rect
		attrs = append(attrs,
			html.Attribute{Key: "data-tv-rect", Val: fmt.Sprintf("%s %s %s %s",
				num(r.Left), num(r.Top), num(r.Width), num(r.Height))},
			html.Attribute{Key: "data-tv-tabindex", Val: strconv.Itoa(f.TabIndex)},
		)
		if f.Display != "" {
			attrs = append(attrs, html.Attribute{Key: "data-tv-display", Val: f.Display})
		}
		if f.Visibility != "" {
			attrs = append(attrs, html.Attribute{Key: "data-tv-visibility", Val: f.Visibility})
		}
		if f.Disabled {
			attrs = append(attrs, html.Attribute{Key: "data-tv-disabled", Val: "true"})
		}
	}
	if n.ID == c.Focus && c.Focus != 0 {
		attrs = append(attrs, html.Attribute{Key: "data-tv-focus"})
	}
	return attrs
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
