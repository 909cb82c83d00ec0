// Package trace reads allocation traces and replays them against an allocator, checking that every
// allocation keeps its contents and never overlaps another.
//
// A trace is a text file with one operation per line:
//
//	a <id> <size>    allocate size bytes and remember the result as id
//	r <id> <size>    resize allocation id to size bytes
//	f <id>           free allocation id
//
// Lines holding a single number before the first operation are header lines and are skipped, as are
// blank lines and lines starting with '#'.
package trace

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type OpKind uint8

const (
	OpAllocate OpKind = iota
	OpResize
	OpFree
)

var opKindMapping = map[OpKind]string{
	OpAllocate: "a",
	OpResize:   "r",
	OpFree:     "f",
}

func (k OpKind) String() string {
	return opKindMapping[k]
}

// Op is one line of a trace
type Op struct {
	Kind OpKind
	ID   int
	Size int
	// Line is the 1-based line the op was read from
	Line int
}

type Trace struct {
	Ops []Op
	// IDCount is one more than the largest id used by any op
	IDCount int
}

// Parse reads a whole trace. Errors identify the offending line.
func Parse(r io.Reader) (*Trace, error) {
	trace := &Trace{}
	scanner := bufio.NewScanner(r)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(trace.Ops) == 0 && len(fields) == 1 {
			if _, err := strconv.ParseFloat(fields[0], 64); err == nil {
				continue
			}
		}

		op, err := parseOp(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNumber)
		}
		op.Line = lineNumber

		trace.Ops = append(trace.Ops, op)
		trace.IDCount = max(trace.IDCount, op.ID+1)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "could not read trace")
	}

	return trace, nil
}

func parseOp(fields []string) (Op, error) {
	var op Op
	var sizeField bool

	switch fields[0] {
	case "a":
		op.Kind = OpAllocate
		sizeField = true
	case "r":
		op.Kind = OpResize
		sizeField = true
	case "f":
		op.Kind = OpFree
	default:
		return op, errors.Newf("unknown operation %q", fields[0])
	}

	expected := 2
	if sizeField {
		expected = 3
	}
	if len(fields) != expected {
		return op, errors.Newf("operation %q takes %d fields but has %d", fields[0], expected, len(fields))
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 {
		return op, errors.Newf("invalid id %q", fields[1])
	}
	op.ID = id

	if sizeField {
		size, err := strconv.Atoi(fields[2])
		if err != nil || size < 0 {
			return op, errors.Newf("invalid size %q", fields[2])
		}
		op.Size = size
	}

	return op, nil
}
