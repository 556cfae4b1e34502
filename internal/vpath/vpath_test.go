package vpath

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/", "/"},
		{"App.jsx", "/App.jsx"},
		{"./App.jsx", "/App.jsx"},
		{"/components//Button.jsx", "/components/Button.jsx"},
		{"/components/./ui/../Button.jsx", "/components/Button.jsx"},
		{"/components/", "/components"},
		{"/a/b/..", "/a"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeInvalid(t *testing.T) {
	for _, in := range []string{"", "/..", "../x", "/a/../../b", "/a\x00b"} {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Normalize(%q) err = %v, want ErrInvalid", in, err)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		from, spec, want string
	}{
		{"/App.jsx", "./components/Button", "/components/Button"},
		{"/components/Card.jsx", "./Button.jsx", "/components/Button.jsx"},
		{"/components/ui/Card.jsx", "../Button", "/components/Button"},
		{"/components/Card.jsx", "/lib/utils", "/lib/utils"},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.from, tt.spec)
		if err != nil {
			t.Fatalf("Resolve(%q, %q) error: %v", tt.from, tt.spec, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.from, tt.spec, got, tt.want)
		}
	}

	if _, err := Resolve("/App.jsx", "../../x"); err == nil {
		t.Error("expected error resolving above the root")
	}
}

func TestPathParts(t *testing.T) {
	if Dir("/components/Button.jsx") != "/components" {
		t.Errorf("Dir mismatch: %q", Dir("/components/Button.jsx"))
	}
	if Dir("/App.jsx") != "/" || Dir("/") != "/" {
		t.Error("Dir of top-level entries should be root")
	}
	if Base("/components/Button.jsx") != "Button.jsx" {
		t.Errorf("Base mismatch: %q", Base("/components/Button.jsx"))
	}
	if Ext("/components/Button.test.tsx") != ".tsx" || Ext("/.env") != "" || Ext("/Makefile") != "" {
		t.Error("Ext mismatch")
	}
	if TrimExt("/a/b.jsx") != "/a/b" {
		t.Errorf("TrimExt mismatch: %q", TrimExt("/a/b.jsx"))
	}
	if got := Split("/a/b/c"); len(got) != 3 || got[2] != "c" {
		t.Errorf("Split mismatch: %v", got)
	}
	if len(Split("/")) != 0 {
		t.Error("Split(/) should be empty")
	}
	if Child("/", "a") != "/a" || Child("/a", "b") != "/a/b" {
		t.Error("Child mismatch")
	}
	if !HasPrefix("/a/b", "/a") || HasPrefix("/ab", "/a") || !HasPrefix("/x", "/") {
		t.Error("HasPrefix mismatch")
	}
}

func TestClassification(t *testing.T) {
	if !IsRelative("./a") || !IsRelative("../a") || !IsRelative(".") || IsRelative("react") || IsRelative("/a") {
		t.Error("IsRelative mismatch")
	}
	if !IsAbs("/a") || IsAbs("a") {
		t.Error("IsAbs mismatch")
	}
	for _, bad := range []string{"", ".", "..", "a/b"} {
		if ValidName(bad) {
			t.Errorf("ValidName(%q) should be false", bad)
		}
	}
	if !ValidName("Button.jsx") {
		t.Error("ValidName(Button.jsx) should be true")
	}
}
