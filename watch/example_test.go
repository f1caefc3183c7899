package watch_test

import (
	"fmt"
	"time"

	"github.com/TFMV/vfswatch/watch"
	"github.com/spf13/afero"
)

func ExampleParseFilter() {
	pattern, base, err := watch.ParseFilter(watch.MustPath("/src"), "pkg/*.go")
	if err != nil {
		panic(err)
	}
	ok, _ := pattern.Match(watch.MustPath("/anywhere/main.go"))
	fmt.Println(pattern, base, ok)
	// Output: *.go /src/pkg true
}

func ExampleNewPath() {
	p, err := watch.NewPath(`a\\b/./c/../d.txt`)
	if err != nil {
		panic(err)
	}
	dir, _ := p.Dir()
	ext, _ := p.ExtensionWithDot()
	fmt.Println(p, dir, ext)
	// Output: a/b/d.txt a/b .txt
}

func ExampleNewMemFS() {
	fs := watch.NewMemFS("mem", watch.MemFSOptions{})
	defer fs.Close()

	w, err := fs.Watch(watch.Root, watch.Options{Filter: "*.txt", Recursive: true, Enabled: true})
	if err != nil {
		panic(err)
	}
	done := make(chan struct{})
	w.OnCreated(func(ev watch.ChangeEvent) error {
		fmt.Println(ev.Type, ev.Path)
		close(done)
		return nil
	})

	_ = fs.MkdirAll("/notes", 0755)
	_ = afero.WriteFile(fs, "/notes/todo.txt", []byte("milk"), 0644)

	select {
	case <-done:
	case <-time.After(time.Second):
	}
	// Output: created /notes/todo.txt
}
