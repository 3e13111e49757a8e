package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// source is one input document with a label for reporting.
type source struct {
	label string
	text  string
}

// readSources reads documents from files, or from stdin when there are
// none. With lines set, every non-empty line is a document.
func readSources(stdin io.Reader, paths []string, lines bool) ([]source, error) {
	if len(paths) == 0 {
		return splitSource("stdin", stdin, lines)
	}

	var out []source

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		docs, err := splitSource(path, f, lines)

		_ = f.Close()

		if err != nil {
			return nil, err
		}

		out = append(out, docs...)
	}

	return out, nil
}

func splitSource(label string, r io.Reader, lines bool) ([]source, error) {
	if !lines {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", label, err)
		}

		return []source{{label: label, text: string(data)}}, nil
	}

	var out []source

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		out = append(out, source{label: fmt.Sprintf("%s:%d", label, n), text: line})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", label, err)
	}

	return out, nil
}

// maxLineBytes bounds a single line in --lines mode.
const maxLineBytes = 16 << 20

// truncate shortens s to at most n runes for table display.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")

	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}
