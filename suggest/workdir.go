package suggest

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/jellydator/ttlcache/v3"
)

// DirContext describes the working directory for the system prompt.
type DirContext struct {
	Path           string
	Listing        string            // space-separated entry names
	PackageManager string            // from lockfile presence
	Manifests      map[string]string // label -> extracted summary
}

const (
	dirContextTTL    = time.Minute
	listingMaxBytes  = 512
	manifestMaxBytes = 256
)

// DirCache caches DirContext entries by absolute path.
type DirCache struct {
	cache *ttlcache.Cache[string, *DirContext]
}

// NewDirCache creates a cache whose entries expire after a minute.
func NewDirCache() *DirCache {
	c := ttlcache.New[string, *DirContext](
		ttlcache.WithTTL[string, *DirContext](dirContextTTL),
		ttlcache.WithDisableTouchOnHit[string, *DirContext](),
	)
	return &DirCache{cache: c}
}

// Get returns the context for dir, gathering it on a miss.
func (dc *DirCache) Get(dir string) *DirContext {
	if item := dc.cache.Get(dir); item != nil {
		return item.Value()
	}
	entry := gatherDir(dir)
	dc.cache.Set(dir, entry, ttlcache.DefaultTTL)
	return entry
}

func gatherDir(dir string) *DirContext {
	entry := &DirContext{Path: dir, Manifests: make(map[string]string)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Debug("read working directory", "path", dir, "error", err)
		return entry
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	entry.Listing = truncate(strings.Join(names, " "), listingMaxBytes)
	entry.PackageManager = detectPackageManager(dir)

	for _, m := range manifests {
		data, err := os.ReadFile(filepath.Join(dir, m.file))
		if err != nil {
			continue
		}
		if summary := m.extract(string(data)); summary != "" {
			entry.Manifests[m.label] = truncate(summary, manifestMaxBytes)
		}
	}
	return entry
}

var manifests = []struct {
	file    string
	label   string
	extract func(string) string
}{
	{"package.json", "package.json scripts", packageScripts},
	{"Makefile", "Makefile targets", makeTargets},
	{"Cargo.toml", "Cargo.toml", cargoName},
}

var lockfiles = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
	{"Cargo.lock", "cargo"},
	{"go.sum", "go"},
	{"uv.lock", "uv"},
	{"poetry.lock", "poetry"},
}

func detectPackageManager(dir string) string {
	for _, lf := range lockfiles {
		if _, err := os.Stat(filepath.Join(dir, lf.file)); err == nil {
			return lf.manager
		}
	}
	return ""
}

func packageScripts(content string) string {
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return ""
	}
	names := make([]string, 0, len(pkg.Scripts))
	for name := range pkg.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func makeTargets(content string) string {
	var targets []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '\t' || line[0] == '#' || line[0] == '.' {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 || (idx+1 < len(line) && line[idx+1] == '=') {
			continue
		}
		target := strings.TrimSpace(line[:idx])
		if strings.ContainsAny(target, "$% =") || seen[target] {
			continue
		}
		seen[target] = true
		targets = append(targets, target)
	}
	return strings.Join(targets, ", ")
}

func cargoName(content string) string {
	var cargo struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
		Bin []struct {
			Name string `toml:"name"`
		} `toml:"bin"`
	}
	if _, err := toml.Decode(content, &cargo); err != nil {
		return ""
	}
	var parts []string
	if cargo.Package.Name != "" {
		parts = append(parts, "package "+cargo.Package.Name)
	}
	for _, bin := range cargo.Bin {
		if bin.Name != "" {
			parts = append(parts, "bin "+bin.Name)
		}
	}
	return strings.Join(parts, ", ")
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
