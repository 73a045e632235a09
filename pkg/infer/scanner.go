package infer

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
)

// maxWalkDepth bounds the filesystem scan below the project root.
const maxWalkDepth = 4

// skipDirs are never descended into during a scan.
var skipDirs = map[string]bool{
	".git":         true,
	".ctxkeep":     true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
	".vscode":      true,
	"dist":         true,
	"target":       true,
}

// Scanner infers context documents from a local project root using bounded
// filesystem scans. No network access.
type Scanner struct {
	root string
}

// NewScanner creates a Scanner for the given project root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Infer implements Source.
func (s *Scanner) Infer(ctx context.Context, kind docs.Kind) (docs.Document, error) {
	survey, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	var typed any
	switch kind {
	case docs.KindProject:
		typed = survey.project()
	case docs.KindStack:
		typed = survey.stack()
	case docs.KindArchitecture:
		typed = survey.architecture()
	case docs.KindConstraints:
		typed = survey.constraints()
	default:
		return nil, &errors.ValidationError{Field: "kind", Value: kind, Message: "unknown document kind"}
	}
	return docs.ToDocument(typed)
}

// survey is everything one walk of the project gathers. Each document kind
// projects its own view of it.
type survey struct {
	root         string
	dirName      string
	goModule     string
	goVersion    string
	goRequires   []string
	packageName  string
	jsDeps       map[string]string
	hasTSConfig  bool
	hasPyProject bool
	hasCargo     bool
	hasMakefile  bool
	hasDocker    bool
	hasCompose   bool
	hasCI        bool
	hasLintCfg   bool
	hasEditorCfg bool
	readmeTitle  string
	readmeBlurb  string
	license      string
	topDirs      []string
	entryPoints  []string
}

// scan walks the project root once, collecting manifest facts and layout.
func (s *Scanner) scan(ctx context.Context) (*survey, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, errors.WrapIO("read", s.root, err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, errors.WrapIO("read", root, err)
	}

	sv := &survey{
		root:    root,
		dirName: filepath.Base(root),
		jsDeps:  make(map[string]string),
	}

	walkErr := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(pathname string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(root, pathname)
			if err != nil || rel == "." {
				return nil
			}
			depth := strings.Count(rel, string(filepath.Separator)) + 1

			if de.IsDir() {
				// .github is descended for workflow detection; other hidden
				// directories are not.
				if skipDirs[de.Name()] || (strings.HasPrefix(de.Name(), ".") && de.Name() != ".github") {
					return filepath.SkipDir
				}
				if depth > maxWalkDepth {
					return filepath.SkipDir
				}
				if depth == 1 && !strings.HasPrefix(de.Name(), ".") {
					sv.topDirs = append(sv.topDirs, de.Name())
				}
				return nil
			}

			sv.noteFile(rel, de.Name())
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if walkErr != nil {
		return nil, errors.WrapIO("walk", root, walkErr)
	}

	sv.readManifests()
	sort.Strings(sv.topDirs)
	sort.Strings(sv.entryPoints)
	return sv, nil
}

// noteFile records layout facts from a single file path.
func (sv *survey) noteFile(rel, name string) {
	depth := strings.Count(rel, string(filepath.Separator)) + 1
	switch {
	case depth == 1 && name == "Makefile":
		sv.hasMakefile = true
	case depth == 1 && name == "Dockerfile":
		sv.hasDocker = true
	case depth == 1 && (name == "docker-compose.yml" || name == "docker-compose.yaml" || name == "compose.yaml"):
		sv.hasCompose = true
	case depth == 1 && name == "tsconfig.json":
		sv.hasTSConfig = true
	case depth == 1 && name == "pyproject.toml":
		sv.hasPyProject = true
	case depth == 1 && name == "Cargo.toml":
		sv.hasCargo = true
	case depth == 1 && name == ".editorconfig":
		sv.hasEditorCfg = true
	case depth == 1 && strings.HasPrefix(name, ".golangci"):
		sv.hasLintCfg = true
	case strings.HasPrefix(rel, filepath.Join(".github", "workflows")):
		sv.hasCI = true
	case name == "main.go":
		dir := filepath.ToSlash(filepath.Dir(rel))
		if dir == "." {
			sv.entryPoints = append(sv.entryPoints, "main.go")
		} else {
			sv.entryPoints = append(sv.entryPoints, dir)
		}
	}
}

// readManifests parses the root manifest files found by the walk.
func (sv *survey) readManifests() {
	sv.readGoMod()
	sv.readPackageJSON()
	sv.readReadme()
	sv.readLicense()
}

func (sv *survey) readGoMod() {
	file, err := os.Open(filepath.Join(sv.root, "go.mod"))
	if err != nil {
		return
	}
	defer file.Close()

	inRequire := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "module "):
			sv.goModule = strings.TrimSpace(strings.TrimPrefix(line, "module "))
		case strings.HasPrefix(line, "go "):
			sv.goVersion = strings.TrimSpace(strings.TrimPrefix(line, "go "))
		case strings.HasPrefix(line, "require ("):
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire || strings.HasPrefix(line, "require "):
			entry := strings.TrimPrefix(line, "require ")
			fields := strings.Fields(entry)
			if len(fields) >= 2 && !strings.Contains(entry, "// indirect") {
				sv.goRequires = append(sv.goRequires, fields[0])
			}
		}
	}
}

func (sv *survey) readPackageJSON() {
	data, err := os.ReadFile(filepath.Join(sv.root, "package.json"))
	if err != nil {
		return
	}
	var pkg struct {
		Name            string            `json:"name"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return
	}
	sv.packageName = pkg.Name
	for name, version := range pkg.Dependencies {
		sv.jsDeps[name] = version
	}
	for name, version := range pkg.DevDependencies {
		sv.jsDeps[name] = version
	}
}

func (sv *survey) readReadme() {
	for _, name := range []string{"README.md", "README"} {
		data, err := os.ReadFile(filepath.Join(sv.root, name))
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if sv.readmeTitle == "" && strings.HasPrefix(line, "#") {
				sv.readmeTitle = strings.TrimSpace(strings.TrimLeft(line, "# "))
				continue
			}
			if sv.readmeTitle != "" && !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "!") && !strings.HasPrefix(line, "[") {
				sv.readmeBlurb = line
				return
			}
		}
		return
	}
}

func (sv *survey) readLicense() {
	for _, name := range []string{"LICENSE", "LICENSE.md", "LICENSE.txt"} {
		data, err := os.ReadFile(filepath.Join(sv.root, name))
		if err != nil {
			continue
		}
		head := strings.ToLower(string(data[:min(len(data), 256)]))
		switch {
		case strings.Contains(head, "mit license"):
			sv.license = "MIT"
		case strings.Contains(head, "apache license"):
			sv.license = "Apache-2.0"
		case strings.Contains(head, "mozilla public license"):
			sv.license = "MPL-2.0"
		case strings.Contains(head, "gnu general public license"):
			sv.license = "GPL"
		case strings.Contains(head, "bsd"):
			sv.license = "BSD"
		}
		return
	}
}

func (sv *survey) project() docs.Project {
	p := docs.Project{
		Name:        sv.dirName,
		Description: sv.readmeBlurb,
		License:     sv.license,
	}
	if sv.readmeTitle != "" {
		p.Name = sv.readmeTitle
	} else if sv.packageName != "" {
		p.Name = sv.packageName
	}
	if sv.goModule != "" {
		if strings.HasPrefix(sv.goModule, "github.com/") || strings.HasPrefix(sv.goModule, "gitlab.com/") {
			p.Repository = "https://" + sv.goModule
		}
	}
	return p
}

func (sv *survey) stack() docs.Stack {
	st := docs.Stack{}
	switch {
	case sv.goModule != "":
		st.Language = "Go"
		st.LanguageVersion = sv.goVersion
		st.PackageManager = "go modules"
		st.Frameworks = goFrameworks(sv.goRequires)
		st.Databases = goDatabases(sv.goRequires)
	case sv.hasTSConfig:
		st.Language = "TypeScript"
		st.Runtime = "Node.js"
		st.PackageManager = "npm"
		st.Frameworks = jsFrameworks(sv.jsDeps)
	case sv.packageName != "":
		st.Language = "JavaScript"
		st.Runtime = "Node.js"
		st.PackageManager = "npm"
		st.Frameworks = jsFrameworks(sv.jsDeps)
	case sv.hasPyProject:
		st.Language = "Python"
		st.PackageManager = "pip"
	case sv.hasCargo:
		st.Language = "Rust"
		st.PackageManager = "cargo"
	}

	if sv.hasMakefile {
		st.BuildTools = append(st.BuildTools, "Make")
	}
	if sv.hasDocker {
		st.BuildTools = append(st.BuildTools, "Docker")
	}
	if sv.hasCompose {
		st.BuildTools = append(st.BuildTools, "Docker Compose")
	}
	if sv.hasCI {
		st.Tooling = append(st.Tooling, "GitHub Actions")
	}
	if sv.hasLintCfg {
		st.Tooling = append(st.Tooling, "golangci-lint")
	}
	return st
}

func (sv *survey) architecture() docs.Architecture {
	arch := docs.Architecture{
		EntryPoints: sv.entryPoints,
	}
	for _, dir := range sv.topDirs {
		arch.Directories = append(arch.Directories, docs.Directory{
			Path: dir,
			Role: directoryRole(dir),
		})
	}
	switch {
	case contains(sv.topDirs, "cmd"):
		arch.Style = "command-line tool"
	case contains(sv.topDirs, "api") || contains(sv.topDirs, "server"):
		arch.Style = "service"
	case contains(sv.topDirs, "pkg") || contains(sv.topDirs, "lib"):
		arch.Style = "library"
	}
	return arch
}

func (sv *survey) constraints() docs.Constraints {
	c := docs.Constraints{}
	if sv.goModule != "" {
		c.Preferences = append(c.Preferences, "go modules for dependency management")
	}
	if sv.hasLintCfg {
		c.MustUse = append(c.MustUse, "golangci-lint")
	}
	if sv.hasEditorCfg {
		c.Preferences = append(c.Preferences, "editorconfig formatting")
	}
	if sv.hasCI {
		c.MustUse = append(c.MustUse, "CI checks on every push")
	}
	return c
}

// goFrameworks maps well-known Go module requirements to framework names.
func goFrameworks(requires []string) []string {
	known := []struct{ module, name string }{
		{"github.com/spf13/cobra", "Cobra"},
		{"github.com/gin-gonic/gin", "Gin"},
		{"github.com/labstack/echo", "Echo"},
		{"github.com/go-chi/chi", "chi"},
		{"github.com/gofiber/fiber", "Fiber"},
		{"google.golang.org/grpc", "gRPC"},
		{"github.com/charmbracelet/bubbletea", "Bubble Tea"},
	}
	var out []string
	for _, k := range known {
		for _, req := range requires {
			if req == k.module || strings.HasPrefix(req, k.module+"/") {
				out = append(out, k.name)
				break
			}
		}
	}
	return out
}

// goDatabases maps driver requirements to database names.
func goDatabases(requires []string) []string {
	known := []struct{ module, name string }{
		{"github.com/lib/pq", "PostgreSQL"},
		{"github.com/jackc/pgx", "PostgreSQL"},
		{"github.com/go-sql-driver/mysql", "MySQL"},
		{"github.com/redis/go-redis", "Redis"},
		{"go.mongodb.org/mongo-driver", "MongoDB"},
		{"github.com/mattn/go-sqlite3", "SQLite"},
		{"go.etcd.io/bbolt", "BoltDB"},
	}
	var out []string
	for _, k := range known {
		for _, req := range requires {
			if req == k.module || strings.HasPrefix(req, k.module+"/") {
				if !contains(out, k.name) {
					out = append(out, k.name)
				}
				break
			}
		}
	}
	return out
}

// jsFrameworks maps package.json dependencies to framework names.
func jsFrameworks(deps map[string]string) []string {
	known := []struct{ pkg, name string }{
		{"react", "React"},
		{"next", "Next.js"},
		{"vue", "Vue"},
		{"express", "Express"},
		{"svelte", "Svelte"},
		{"@angular/core", "Angular"},
	}
	var out []string
	for _, k := range known {
		if _, ok := deps[k.pkg]; ok {
			out = append(out, k.name)
		}
	}
	return out
}

// directoryRole describes conventional top-level directories.
func directoryRole(name string) string {
	switch name {
	case "cmd":
		return "command-line entry points"
	case "internal":
		return "private application packages"
	case "pkg":
		return "public library packages"
	case "api":
		return "API definitions"
	case "docs", "doc":
		return "documentation"
	case "test", "tests":
		return "test suites and fixtures"
	case "scripts":
		return "development scripts"
	case "examples":
		return "usage examples"
	case "src":
		return "source code"
	case "web", "ui":
		return "user interface"
	}
	return ""
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
