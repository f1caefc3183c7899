package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// formatCommand expands the event placeholders of template:
//
//	{}  path    {old} old path    {base} name    {dir} directory
//	{event}     {source}          {time}
//
// Each placeholder also has a quoted form, e.g. {""} or {"base"}.
func formatCommand(template string, record eventRecord) string {
	dir, base := record.Path, record.Path
	if i := strings.LastIndexByte(record.Path, '/'); i >= 0 {
		dir, base = record.Path[:i], record.Path[i+1:]
		if dir == "" {
			dir = "/"
		}
	}
	values := []struct{ key, value string }{
		{"", record.Path},
		{"old", record.OldPath},
		{"base", base},
		{"dir", dir},
		{"event", record.Event},
		{"source", record.Source},
		{"time", record.Time.Format(time.RFC3339)},
	}

	str := template
	// Replace quoted versions first so {""} is not consumed by {}.
	for _, v := range values {
		str = strings.ReplaceAll(str, `{"`+v.key+`"}`, strconv.Quote(v.value))
	}
	for _, v := range values {
		str = strings.ReplaceAll(str, "{"+v.key+"}", v.value)
	}
	return str
}

// executeCommand runs cmdStr, writing its standard output to out. A failing
// command is returned with its standard error attached.
func executeCommand(ctx context.Context, cmdStr string, out io.Writer) error {
	args, err := splitCommand(cmdStr)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	// Capture output
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("command error: %s: %w", strings.TrimSpace(stderr.String()), err)
		}
		return err
	}

	if stdout.Len() > 0 {
		_, err := out.Write(stdout.Bytes())
		return err
	}
	return nil
}

// splitCommand splits cmdStr on spaces, keeping double-quoted arguments (as
// produced by the quoted placeholders) together.
func splitCommand(cmdStr string) ([]string, error) {
	var args []string
	var current strings.Builder
	inArg := false
	for i := 0; i < len(cmdStr); i++ {
		c := cmdStr[i]
		switch {
		case c == '"':
			end := i + 1
			for end < len(cmdStr) && cmdStr[end] != '"' {
				if cmdStr[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(cmdStr) {
				return nil, fmt.Errorf("unterminated quote in command: %s", cmdStr)
			}
			unquoted, err := strconv.Unquote(cmdStr[i : end+1])
			if err != nil {
				return nil, fmt.Errorf("invalid quoted argument in command: %w", err)
			}
			current.WriteString(unquoted)
			inArg = true
			i = end
		case c == ' ' || c == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteByte(c)
			inArg = true
		}
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
