package verify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// typePriority orders commands within an ecosystem: a broken build makes
// every later check meaningless, so build runs first.
var typePriority = map[CommandType]int{
	TypeBuild:     0,
	TypeTypecheck: 1,
	TypeTest:      2,
	TypeLint:      3,
}

// Discover probes project manifests in a fixed priority order and returns
// the commands of the first ecosystem that yields any. Ecosystems are
// mutually exclusive per run, never merged.
func Discover(projectDir string) Discovery {
	probes := []struct {
		manifest string
		probe    func(path string) []Command
	}{
		{"package.json", discoverNode},
		{"go.mod", discoverGo},
		{"pyproject.toml", discoverPython},
		{"Makefile", discoverMake},
	}

	var sources []string
	for _, p := range probes {
		path := filepath.Join(projectDir, p.manifest)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		sources = append(sources, p.manifest)

		commands := p.probe(path)
		if len(commands) == 0 {
			continue
		}

		sort.SliceStable(commands, func(i, j int) bool {
			return typePriority[commands[i].Type] < typePriority[commands[j].Type]
		})
		for i := range commands {
			commands[i].ID = fmt.Sprintf("cmd-%d", i+1)
			commands[i].Status = StatusPending
			commands[i].Optional = !commands[i].Type.Required()
		}
		return Discovery{Commands: commands, Sources: sources}
	}

	return Discovery{Sources: sources}
}

// discoverNode inspects the package.json scripts map and emits one command
// per recognized script name.
func discoverNode(path string) []Command {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}

	recognized := []struct {
		script string
		typ    CommandType
	}{
		{"build", TypeBuild},
		{"typecheck", TypeTypecheck},
		{"tsc", TypeTypecheck},
		{"test", TypeTest},
		{"lint", TypeLint},
	}

	var commands []Command
	seen := map[CommandType]bool{}
	for _, r := range recognized {
		if _, ok := manifest.Scripts[r.script]; !ok || seen[r.typ] {
			continue
		}
		seen[r.typ] = true
		commands = append(commands, Command{
			Name:    "npm run " + r.script,
			Command: "npm run " + r.script,
			Type:    r.typ,
		})
	}
	return commands
}

// discoverGo emits the conventional Go toolchain commands. Presence of
// go.mod alone is enough; the file contents carry no script information.
func discoverGo(string) []Command {
	return []Command{
		{Name: "go build", Command: "go build ./...", Type: TypeBuild},
		{Name: "go test", Command: "go test ./...", Type: TypeTest},
		{Name: "go vet", Command: "go vet ./...", Type: TypeLint},
	}
}

// discoverPython text-searches pyproject.toml for tool-section markers.
func discoverPython(path string) []Command {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	content := string(data)

	var commands []Command
	if strings.Contains(content, "[tool.mypy") {
		commands = append(commands, Command{Name: "mypy", Command: "mypy .", Type: TypeTypecheck})
	}
	if strings.Contains(content, "[tool.pytest") {
		commands = append(commands, Command{Name: "pytest", Command: "pytest", Type: TypeTest})
	}
	if strings.Contains(content, "[tool.ruff") {
		commands = append(commands, Command{Name: "ruff", Command: "ruff check .", Type: TypeLint})
	}
	return commands
}

var makeTarget = regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z0-9_-]*):`)

// discoverMake parses Makefile target names and emits commands for the
// recognized ones. Lowest priority: only reached when nothing else matched.
func discoverMake(path string) []Command {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	targets := map[string]bool{}
	for _, m := range makeTarget.FindAllStringSubmatch(string(data), -1) {
		targets[m[1]] = true
	}

	recognized := []struct {
		target string
		typ    CommandType
	}{
		{"build", TypeBuild},
		{"typecheck", TypeTypecheck},
		{"type-check", TypeTypecheck},
		{"test", TypeTest},
		{"lint", TypeLint},
	}

	var commands []Command
	seen := map[CommandType]bool{}
	for _, r := range recognized {
		if !targets[r.target] || seen[r.typ] {
			continue
		}
		seen[r.typ] = true
		commands = append(commands, Command{
			Name:    "make " + r.target,
			Command: "make " + r.target,
			Type:    r.typ,
		})
	}
	return commands
}
