package position

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const maxLineSize = 1024 * 1024

// Position is a single board encoding read from the input file.
type Position struct {
	// Line is the 1-based line number in the source file.
	Line     int    `json:"line" yaml:"line"`
	Encoding string `json:"position" yaml:"position"`
}

func (p Position) String() string {
	return p.Encoding
}

// InputError is returned when the input file cannot be opened or read.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error: %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Reader yields positions from a file one line at a time.
type Reader struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
	current Position
	err     error
}

// Open opens the input file at path.
func Open(path string) (*Reader, error) {
	if path == "" {
		return nil, &InputError{Path: path, Err: os.ErrInvalid}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &InputError{Path: path, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, &InputError{Path: path, Err: fmt.Errorf("is a directory")}
	}

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	return &Reader{
		path:    path,
		file:    f,
		scanner: s,
	}, nil
}

// Next advances to the next non-empty line. It returns false at the end of
// the file or on a read error, see Err.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	for r.scanner.Scan() {
		r.line++
		text := strings.TrimRightFunc(r.scanner.Text(), unicode.IsSpace)
		if text == "" {
			continue
		}
		r.current = Position{Line: r.line, Encoding: text}
		return true
	}

	if err := r.scanner.Err(); err != nil {
		r.err = &InputError{Path: r.path, Err: err}
	}
	return false
}

// Position returns the position read by the last successful call to Next.
func (r *Reader) Position() Position {
	return r.current
}

// Err returns the first read error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Close() error {
	return r.file.Close()
}
