package script

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed scripts/*.yaml
var builtinFS embed.FS

const builtinPrefix = "builtin:"

// Builtin returns the scripts shipped with the binary, sorted by name.
func Builtin() ([]*Script, error) {
	entries, err := builtinFS.ReadDir("scripts")
	if err != nil {
		return nil, err
	}
	scripts := make([]*Script, 0, len(entries))
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("scripts", e.Name()))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		s, err := Parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", e.Name(), err)
		}
		s.Source = builtinPrefix + s.Name
		scripts = append(scripts, s)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })
	return scripts, nil
}

// LookupBuiltin finds a built-in script by name, with or without the
// "builtin:" prefix.
func LookupBuiltin(name string) (*Script, error) {
	name = strings.TrimPrefix(name, builtinPrefix)
	all, err := Builtin()
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no built-in script named %q", name)
}

// Resolve loads arg as a file when it exists, otherwise as a built-in name.
func Resolve(arg string) (*Script, error) {
	if !strings.HasPrefix(arg, builtinPrefix) {
		if _, err := os.Stat(arg); err == nil {
			return Load(arg)
		}
	}
	s, err := LookupBuiltin(arg)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a script file nor a built-in script", arg)
	}
	return s, nil
}
