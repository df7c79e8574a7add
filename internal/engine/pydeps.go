package engine

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var pyImportRe = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// pyStdlib covers the standard-library modules user code commonly imports.
// Anything listed here never triggers an install.
var pyStdlib = map[string]struct{}{
	"abc": {}, "argparse": {}, "asyncio": {}, "base64": {}, "collections": {},
	"contextlib": {}, "copy": {}, "csv": {}, "dataclasses": {}, "datetime": {},
	"decimal": {}, "enum": {}, "functools": {}, "glob": {}, "hashlib": {},
	"heapq": {}, "html": {}, "http": {}, "io": {}, "itertools": {}, "json": {},
	"logging": {}, "math": {}, "os": {}, "pathlib": {}, "pickle": {},
	"queue": {}, "random": {}, "re": {}, "shutil": {}, "signal": {},
	"socket": {}, "sqlite3": {}, "statistics": {}, "string": {}, "struct": {},
	"subprocess": {}, "sys": {}, "tempfile": {}, "textwrap": {}, "threading": {},
	"time": {}, "traceback": {}, "types": {}, "typing": {}, "unittest": {},
	"urllib": {}, "uuid": {}, "warnings": {}, "xml": {}, "zipfile": {},
}

// pyPackageNames maps import names to PyPI distribution names where they
// differ.
var pyPackageNames = map[string]string{
	"bs4":     "beautifulsoup4",
	"cv2":     "opencv-python-headless",
	"PIL":     "pillow",
	"sklearn": "scikit-learn",
	"yaml":    "pyyaml",
}

// detectPythonPackages scans the job's Python sources for third-party
// imports. Modules from the standard library and modules provided by the
// job's own files are skipped. This is a heuristic: anything it misses just
// fails at runtime inside the sandbox, and a scan that finds nothing simply
// installs nothing.
func detectPythonPackages(files map[string]string) []string {
	local := make(map[string]struct{})
	for name := range files {
		base := filepath.Base(name)
		local[strings.TrimSuffix(base, filepath.Ext(base))] = struct{}{}
		// Top-level directories double as local package names.
		if i := strings.IndexByte(name, '/'); i > 0 {
			local[name[:i]] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var pkgs []string
	for name, content := range files {
		if !strings.HasSuffix(name, ".py") {
			continue
		}
		for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
			mod := m[1]
			if _, ok := pyStdlib[mod]; ok {
				continue
			}
			if _, ok := local[mod]; ok {
				continue
			}
			pkg := mod
			if mapped, ok := pyPackageNames[mod]; ok {
				pkg = mapped
			}
			if _, ok := seen[pkg]; ok {
				continue
			}
			seen[pkg] = struct{}{}
			pkgs = append(pkgs, pkg)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// wrapPipInstall prefixes the entry command with a best-effort dependency
// install. Install failures never fail the job; the user program runs
// either way and reports its own import errors.
func wrapPipInstall(entry string, pkgs []string) string {
	if len(pkgs) == 0 {
		return entry
	}
	return "pip install --quiet --no-cache-dir " + strings.Join(pkgs, " ") + " || true; " + entry
}
