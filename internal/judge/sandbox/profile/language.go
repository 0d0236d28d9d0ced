// Package profile defines language profiles used by the sandbox.
package profile

import (
	"fmt"
	"strings"
)

// LanguageSpec defines how to compile and run a language.
// Command templates may reference {source}, {binary} and {workdir}.
type LanguageSpec struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	SourceFile     string   `yaml:"source_file"`
	BinaryFile     string   `yaml:"binary_file"`
	CompileEnabled bool     `yaml:"compile_enabled"`
	CompileCmdTpl  string   `yaml:"compile_cmd"`
	RunCmdTpl      string   `yaml:"run_cmd"`
	Env            []string `yaml:"env"`
}

// IsolationProfile describes namespace settings for sandboxed tasks.
// Network is always disabled; the sandbox denies outbound connectivity
// unconditionally.
type IsolationProfile struct {
	RootFS string `yaml:"rootfs"`
}

// Registry resolves language ids to specs.
type Registry interface {
	GetLanguageSpec(id string) (LanguageSpec, error)
}

// StaticRegistry is an in-memory Registry.
type StaticRegistry struct {
	specs map[string]LanguageSpec
}

// NewStaticRegistry builds a registry from the given specs.
// With no specs it falls back to the built-in language set.
func NewStaticRegistry(specs []LanguageSpec) *StaticRegistry {
	if len(specs) == 0 {
		specs = Builtin()
	}
	index := make(map[string]LanguageSpec, len(specs))
	for _, s := range specs {
		index[s.ID] = s
	}
	return &StaticRegistry{specs: index}
}

// GetLanguageSpec returns the spec for a language id.
func (r *StaticRegistry) GetLanguageSpec(id string) (LanguageSpec, error) {
	s, ok := r.specs[id]
	if !ok {
		return LanguageSpec{}, fmt.Errorf("unknown language %q", id)
	}
	return s, nil
}

// Builtin returns the supported language set.
func Builtin() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:         "python",
			Name:       "Python 3",
			SourceFile: "main.py",
			RunCmdTpl:  "python3 {source}",
		},
		{
			ID:             "cpp",
			Name:           "C++17",
			SourceFile:     "main.cpp",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "g++ -O2 -std=c++17 -o {binary} {source}",
			RunCmdTpl:      "./{binary}",
		},
		{
			ID:             "java",
			Name:           "Java 17",
			SourceFile:     "Main.java",
			BinaryFile:     "Main.class",
			CompileEnabled: true,
			CompileCmdTpl:  "javac {source}",
			RunCmdTpl:      "java -cp {workdir} Main",
		},
	}
}

// ExpandCmd renders a command template into argv form.
func ExpandCmd(tpl, source, binary, workdir string) []string {
	replacer := strings.NewReplacer(
		"{source}", source,
		"{binary}", binary,
		"{workdir}", workdir,
	)
	fields := strings.Fields(replacer.Replace(tpl))
	return fields
}
