package ruleset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds the sink and source patterns the analyzer matches against.
// The built-in defaults cover the common Python web-app attack surface; a
// YAML file can extend (never replace) them per project.
type Catalog struct {
	SQLSinks         []string `yaml:"sql_sinks"`
	CommandSinks     []string `yaml:"command_sinks"`
	CodeSinks        []string `yaml:"code_sinks"`
	PathSinks        []string `yaml:"path_sinks"`
	DeserializeSinks []string `yaml:"deserialize_sinks"`
	SSRFSinks        []string `yaml:"ssrf_sinks"`
	XXESinks         []string `yaml:"xxe_sinks"`
	RegexSinks       []string `yaml:"regex_sinks"`

	// WebEntryPoints are textual prefixes of web-request accessors
	// (Flask-style request.* attributes).
	WebEntryPoints []string `yaml:"web_entry_points"`

	// CLIEntryPoints are textual patterns for command-line input sources.
	CLIEntryPoints []string `yaml:"cli_entry_points"`
}

// DefaultCatalog returns the compiled-in sink and source patterns.
func DefaultCatalog() *Catalog {
	return &Catalog{
		SQLSinks: []string{"execute", "executemany", "raw", "execute_sql"},
		CommandSinks: []string{
			"system", "popen", "call", "run", "check_output",
			"check_call", "Popen", "getoutput", "getstatusoutput",
		},
		CodeSinks: []string{"eval", "exec", "compile"},
		PathSinks: []string{"open", "read_file", "write_file", "send_file", "remove", "unlink"},
		DeserializeSinks: []string{
			"loads", // pickle.loads, marshal.loads
			"load",  // pickle.load, yaml.load
		},
		SSRFSinks: []string{
			"requests.get", "requests.post",
			"urlopen", // urllib.request.urlopen
			"urlretrieve",
		},
		XXESinks: []string{
			"parse",      // lxml.etree.parse
			"fromstring", // lxml.etree.fromstring
		},
		RegexSinks: []string{"compile", "match", "search", "findall", "sub"},
		WebEntryPoints: []string{
			"request.args", "request.form", "request.data", "request.json",
			"request.files", "request.values", "request.cookies", "request.headers",
		},
		CLIEntryPoints: []string{
			"sys.argv",
			"args.", // argparse namespaces
			"input(",
		},
	}
}

// LoadCatalog returns the default catalog merged with the YAML file at path.
// An empty path returns the defaults unchanged.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var overlay Catalog
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	catalog.merge(&overlay)
	return catalog, nil
}

// merge appends the overlay's patterns, skipping entries already present.
func (c *Catalog) merge(overlay *Catalog) {
	c.SQLSinks = appendUnique(c.SQLSinks, overlay.SQLSinks)
	c.CommandSinks = appendUnique(c.CommandSinks, overlay.CommandSinks)
	c.CodeSinks = appendUnique(c.CodeSinks, overlay.CodeSinks)
	c.PathSinks = appendUnique(c.PathSinks, overlay.PathSinks)
	c.DeserializeSinks = appendUnique(c.DeserializeSinks, overlay.DeserializeSinks)
	c.SSRFSinks = appendUnique(c.SSRFSinks, overlay.SSRFSinks)
	c.XXESinks = appendUnique(c.XXESinks, overlay.XXESinks)
	c.RegexSinks = appendUnique(c.RegexSinks, overlay.RegexSinks)
	c.WebEntryPoints = appendUnique(c.WebEntryPoints, overlay.WebEntryPoints)
	c.CLIEntryPoints = appendUnique(c.CLIEntryPoints, overlay.CLIEntryPoints)
}

// EntryPoints returns the union of web and CLI source patterns.
func (c *Catalog) EntryPoints() []string {
	points := make([]string, 0, len(c.WebEntryPoints)+len(c.CLIEntryPoints))
	points = append(points, c.WebEntryPoints...)
	points = append(points, c.CLIEntryPoints...)
	return points
}

func appendUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		if !seen[s] {
			base = append(base, s)
			seen[s] = true
		}
	}
	return base
}
