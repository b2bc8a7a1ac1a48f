// Package navigation keeps the nav tree of an MkDocs configuration in sync with
// generated documents. The configuration is held as a yaml.Node tree, so keys,
// comments, tags and quoting outside the managed subtree survive a rewrite.
package navigation

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	perrors "py2md/internal/errors"
	"py2md/internal/logging"
)

const navKey = "nav"

// Config is a loaded site configuration.
type Config struct {
	path   string
	doc    *yaml.Node
	exists bool
	log    zerolog.Logger
}

// Entry is one leaf of the navigation tree.
type Entry struct {
	Title string
	Path  string
}

// Load reads the configuration at path. A missing file yields an empty
// configuration with an empty nav; malformed YAML, a non-mapping root or a
// non-sequence nav are ConfigParse errors.
func Load(configPath string) (*Config, error) {
	c := &Config{path: configPath, log: logging.GetLogger("navigation")}

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.doc = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{newMapping()}}
	case err != nil:
		return nil, perrors.Wrap(err, perrors.ErrIO, configPath, "failed to read site configuration")
	default:
		c.exists = true
		dec := yaml.NewDecoder(bytes.NewReader(data))
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, perrors.Wrap(err, perrors.ErrConfigParse, configPath, "malformed YAML")
		}
		// Save writes a single document back, so further documents would be lost.
		var extra yaml.Node
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			if err != nil {
				return nil, perrors.Wrap(err, perrors.ErrConfigParse, configPath, "malformed YAML")
			}
			return nil, perrors.New(perrors.ErrConfigParse, configPath, "file holds more than one YAML document").WithLine(extra.Line)
		}
		if doc.Kind == 0 || len(doc.Content) == 0 {
			// Empty or comment-only file.
			doc.Kind = yaml.DocumentNode
			doc.Content = []*yaml.Node{newMapping()}
		}
		c.doc = &doc
	}

	root := c.root()
	if root.Kind != yaml.MappingNode {
		return nil, perrors.New(perrors.ErrConfigParse, configPath, "top level is not a mapping")
	}
	nav := mappingValue(root, navKey)
	switch {
	case nav == nil:
		root.Content = append(root.Content, scalar(navKey), newSequence())
	case isNull(nav):
		*nav = *newSequence()
	case nav.Kind != yaml.SequenceNode:
		return nil, perrors.Newf(perrors.ErrConfigParse, configPath, "%q is not a list", navKey).WithLine(nav.Line)
	}
	return c, nil
}

// Path is where the configuration is read from and saved to.
func (c *Config) Path() string { return c.path }

// Exists reports whether the configuration was read from disk.
func (c *Config) Exists() bool { return c.exists }

func (c *Config) root() *yaml.Node {
	return c.doc.Content[0]
}

func (c *Config) nav() *yaml.Node {
	return mappingValue(c.root(), navKey)
}

// Merge replaces the managed subtree (section, or section → subgroup when
// subgroup is non-empty) with one entry per path. Paths are relative to the
// nav root and are sorted here. Entries elsewhere in nav are never touched;
// a missing section or subgroup is appended after its siblings. It returns
// how many previous entries of the subtree are gone.
func (c *Config) Merge(paths []string, section, subgroup string) int {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	items := newSequence()
	for _, p := range sorted {
		items.Content = append(items.Content, pair(Title(p), scalar(p)))
	}

	keyPath := []string{section}
	if subgroup != "" {
		keyPath = append(keyPath, subgroup)
	}
	dropped := replaceAt(c.nav(), keyPath, items)
	c.log.Info().Str("section", section).Str("subgroup", subgroup).
		Int("entries", len(sorted)).Int("dropped", dropped).
		Msg("Navigation subtree replaced")
	return dropped
}

// replaceAt finds or creates the single-key mapping named path[0] in seq and
// descends until the last key, whose value is replaced by items. A value that
// is not a list is reset to an empty one before descending.
func replaceAt(seq *yaml.Node, keyPath []string, items *yaml.Node) int {
	key := keyPath[0]
	val := findEntry(seq, key)
	if val == nil {
		// Appended entries are written in block style even under "nav: []".
		seq.Style &^= yaml.FlowStyle
	}

	if len(keyPath) == 1 {
		if val == nil {
			seq.Content = append(seq.Content, pair(key, items))
			return 0
		}
		dropped := staleCount(val, items)
		*val = *items
		return dropped
	}

	if val == nil {
		child := newSequence()
		seq.Content = append(seq.Content, pair(key, child))
		return replaceAt(child, keyPath[1:], items)
	}
	if val.Kind != yaml.SequenceNode {
		*val = *newSequence()
	}
	return replaceAt(val, keyPath[1:], items)
}

// findEntry returns the value node of the first mapping in seq that has key.
func findEntry(seq *yaml.Node, key string) *yaml.Node {
	for _, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		if v := mappingValue(item, key); v != nil {
			return v
		}
	}
	return nil
}

// staleCount counts leaves under old whose path is not among the new items.
func staleCount(old, items *yaml.Node) int {
	keep := make(map[string]bool, len(items.Content))
	for _, e := range leaves(items) {
		keep[e.Path] = true
	}
	n := 0
	for _, e := range leaves(old) {
		if !keep[e.Path] {
			n++
		}
	}
	return n
}

func leaves(n *yaml.Node) []Entry {
	var out []Entry
	switch n.Kind {
	case yaml.SequenceNode:
		for _, item := range n.Content {
			out = append(out, leaves(item)...)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if v.Kind == yaml.ScalarNode {
				out = append(out, Entry{Title: k.Value, Path: v.Value})
				continue
			}
			out = append(out, leaves(v)...)
		}
	case yaml.ScalarNode:
		if !isNull(n) {
			out = append(out, Entry{Path: n.Value})
		}
	}
	return out
}

// Entries returns the leaves currently under section (→ subgroup).
func (c *Config) Entries(section, subgroup string) []Entry {
	val := findEntry(c.nav(), section)
	if val != nil && subgroup != "" {
		if val.Kind != yaml.SequenceNode {
			return nil
		}
		val = findEntry(val, subgroup)
	}
	if val == nil {
		return nil
	}
	return leaves(val)
}

// Bytes serializes the configuration with two-space indentation.
func (c *Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the configuration atomically: a temp file in the same directory
// is renamed over the target.
func (c *Config) Save() error {
	data, err := c.Bytes()
	if err != nil {
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to encode site configuration")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to create configuration directory")
	}
	mode := fs.FileMode(0644)
	if info, err := os.Stat(c.path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to create temporary file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to write temporary file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to sync temporary file")
	}
	if err := tmp.Close(); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to close temporary file")
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to set file mode")
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, c.path, "failed to replace site configuration")
	}
	c.exists = true
	c.log.Debug().Str("path", c.path).Int("bytes", len(data)).Msg("Site configuration saved")
	return nil
}

// RelativePaths expresses document paths relative to navRoot with forward
// slashes, sorted. A document outside navRoot is an error.
func RelativePaths(docPaths []string, navRoot string) ([]string, error) {
	base, err := filepath.Abs(navRoot)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrIO, navRoot, "failed to resolve nav root")
	}
	out := make([]string, 0, len(docPaths))
	for _, p := range docPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.ErrIO, p, "failed to resolve document path")
		}
		rel, err := filepath.Rel(base, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, perrors.Newf(perrors.ErrConfigInvalid, p, "document is outside the nav root %s", navRoot)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out, nil
}

// Title derives a nav label from a document path: the base name without
// extension, underscores as spaces, title-cased word by word.
func Title(p string) string {
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return titleCase(strings.ReplaceAll(stem, "_", " "))
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && (n.Tag == "!!null" || (n.Tag == "" && (n.Value == "" || n.Value == "~" || n.Value == "null")))
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func newSequence() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func pair(key string, value *yaml.Node) *yaml.Node {
	m := newMapping()
	m.Content = []*yaml.Node{scalar(key), value}
	return m
}
