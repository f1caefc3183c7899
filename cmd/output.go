package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// Output formats
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// texter is implemented by records that have a one-line text rendering.
type texter interface {
	Text() string
}

// printer writes records in one format. It is safe for concurrent use since
// events arrive from one dispatcher per mount.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	format string
}

func newPrinter(out io.Writer, format string) (*printer, error) {
	switch format {
	case formatText, formatJSON, formatYAML:
		return &printer{out: out, format: format}, nil
	}
	return nil, fmt.Errorf("invalid format: %s (expected text, json or yaml)", format)
}

// print writes one record. JSON is one object per line, YAML one document each.
func (p *printer) print(record texter) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case formatJSON:
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	case formatYAML:
		data, err := yaml.Marshal(record)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.out, "---\n%s", data)
		return err
	}
	_, err := fmt.Fprintln(p.out, record.Text())
	return err
}
