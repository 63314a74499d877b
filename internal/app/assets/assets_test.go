package assets

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestCollectCopiesTree(t *testing.T) {
	src := fstest.MapFS{
		"a.css":     {Data: []byte("body{}")},
		"js/app.js": {Data: []byte("console.log(1)")},
		"img/x.txt": {Data: []byte("x")},
	}
	dst := t.TempDir()
	n, err := collect(src, dst)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 files, got %d", n)
	}
	data, err := os.ReadFile(filepath.Join(dst, "js", "app.js"))
	if err != nil || string(data) != "console.log(1)" {
		t.Fatalf("unexpected copy %q: %v", data, err)
	}

	// a second run overwrites in place
	if n, err := collect(src, dst); err != nil || n != 3 {
		t.Fatalf("recollect: %d %v", n, err)
	}
}

func TestEmbeddedAssetsPresent(t *testing.T) {
	n, err := Collect(t.TempDir())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if n == 0 {
		t.Fatalf("no embedded assets")
	}
}
