package plex

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Node is one XML element of a Plex response.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node
	Parent   *Node
}

// Attr returns the named attribute, or "" when absent.
func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}

func (n *Node) RatingKey() string { return n.Attr("ratingKey") }
func (n *Node) Title() string     { return n.Attr("title") }
func (n *Node) Type() string      { return n.Attr("type") }

// Index returns the numeric index attribute (season or episode number).
func (n *Node) Index() (int, bool) {
	return n.intAttr("index")
}

// ParentIndex returns the season number carried on an episode.
func (n *Node) ParentIndex() (int, bool) {
	return n.intAttr("parentIndex")
}

func (n *Node) intAttr(name string) (int, bool) {
	raw, ok := n.Attrs[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

// Ancestor returns the nearest enclosing element with the given name.
func (n *Node) Ancestor(name string) *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Document is a parsed library or children listing. It is built once per
// response and never modified.
type Document struct {
	Root *Node
}

// ParseDocument decodes a Plex XML body into a node tree.
func ParseDocument(body string) (*Document, error) {
	dec := xml.NewDecoder(strings.NewReader(body))

	var root, current *Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{
				Name:   t.Name.Local,
				Attrs:  make(map[string]string, len(t.Attr)),
				Parent: current,
			}
			for _, a := range t.Attr {
				node.Attrs[a.Name.Local] = a.Value
			}
			if current == nil {
				if root != nil {
					return nil, fmt.Errorf("failed to parse response: multiple root elements")
				}
				root = node
			} else {
				current.Children = append(current.Children, node)
			}
			current = node
		case xml.EndElement:
			if current != nil {
				current = current.Parent
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("failed to parse response: no root element")
	}
	return &Document{Root: root}, nil
}

// Walk visits every element in document order until fn returns false.
func (d *Document) Walk(fn func(*Node) bool) {
	if d == nil || d.Root == nil {
		return
	}
	walk(d.Root, fn)
}

func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// Directories returns Directory elements of the given type in document order.
func (d *Document) Directories(typ string) []*Node {
	var dirs []*Node
	d.Walk(func(n *Node) bool {
		if n.Name == "Directory" && n.Type() == typ {
			dirs = append(dirs, n)
		}
		return true
	})
	return dirs
}

// FindVideoByFile returns the Video element owning a Part whose file attribute
// equals file exactly. A Part outside any Video, or a Video without a
// ratingKey, does not count as a match.
func (d *Document) FindVideoByFile(file string) (*Node, bool) {
	var found *Node
	d.Walk(func(n *Node) bool {
		if n.Name != "Part" {
			return true
		}
		if v, ok := n.Attrs["file"]; !ok || v != file {
			return true
		}
		video := n.Ancestor("Video")
		if video == nil || video.RatingKey() == "" {
			return true
		}
		found = video
		return false
	})
	return found, found != nil
}

// FindShowByTitle returns the show Directory best matching title under the
// given policy.
func (d *Document) FindShowByTitle(title string, policy TitlePolicy) (*Node, bool) {
	shows := d.Directories("show")
	if len(shows) == 0 {
		return nil, false
	}

	want := NormalizeTitle(title)
	if want == "" {
		return nil, false
	}

	if policy.Mode == TitleMatchExact {
		slug := Slugify(title)
		for _, show := range shows {
			if NormalizeTitle(show.Title()) == want || (show.Attr("slug") != "" && show.Attr("slug") == slug) {
				return show, true
			}
		}
		return nil, false
	}

	var best *Node
	bestDistance := -1
	for _, show := range shows {
		dist := EditDistance(want, NormalizeTitle(show.Title()))
		if bestDistance < 0 || dist < bestDistance {
			best, bestDistance = show, dist
		}
	}
	if policy.MaxDistance > 0 && bestDistance > policy.MaxDistance {
		return nil, false
	}
	return best, true
}

// FindSeasonByIndex returns the first season Directory whose index attribute
// equals index, or whose title is "Season N" (or "Specials" for index 0).
func (d *Document) FindSeasonByIndex(index int) (*Node, bool) {
	if index < 0 {
		return nil, false
	}
	seasonTitle := fmt.Sprintf("Season %d", index)
	for _, season := range d.Directories("season") {
		if i, ok := season.Index(); ok && i == index {
			return season, true
		}
		title := strings.TrimSpace(season.Title())
		if strings.EqualFold(title, seasonTitle) {
			return season, true
		}
		if index == 0 && strings.EqualFold(title, "Specials") {
			return season, true
		}
	}
	return nil, false
}
