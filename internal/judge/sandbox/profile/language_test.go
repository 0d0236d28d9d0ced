package profile

import (
	"reflect"
	"testing"
)

func TestRegistryFallsBackToBuiltin(t *testing.T) {
	t.Parallel()

	r := NewStaticRegistry(nil)
	for _, id := range []string{"python", "cpp", "java"} {
		if _, err := r.GetLanguageSpec(id); err != nil {
			t.Fatalf("builtin language %s missing: %v", id, err)
		}
	}
	if _, err := r.GetLanguageSpec("brainfuck"); err == nil {
		t.Fatal("unknown language must error")
	}
}

func TestRegistryCustomSpecsReplaceBuiltin(t *testing.T) {
	t.Parallel()

	r := NewStaticRegistry([]LanguageSpec{{ID: "go", SourceFile: "main.go", RunCmdTpl: "go run {source}"}})
	if _, err := r.GetLanguageSpec("go"); err != nil {
		t.Fatalf("custom language missing: %v", err)
	}
	if _, err := r.GetLanguageSpec("python"); err == nil {
		t.Fatal("custom registry must not include builtins")
	}
}

func TestExpandCmd(t *testing.T) {
	t.Parallel()

	got := ExpandCmd("g++ -O2 -o {binary} {source}", "main.cpp", "main", "/work")
	want := []string{"g++", "-O2", "-o", "main", "main.cpp"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExpandCmd = %v, want %v", got, want)
	}

	got = ExpandCmd("java -cp {workdir} Main", "Main.java", "Main.class", "/work")
	want = []string{"java", "-cp", "/work", "Main"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExpandCmd = %v, want %v", got, want)
	}
}
