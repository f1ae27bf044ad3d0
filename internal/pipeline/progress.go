/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// stderrTailLines bounds how much stderr is retained for error diagnostics.
const stderrTailLines = 50

var (
	reFrame   = regexp.MustCompile(`frame=\s*(\d+)`)
	reFPS     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	reBitrate = regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`)
	reTime    = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// scanProgress reads ffmpeg stderr line by line, emitting a Progress sample
// for every status line and retaining non-status lines in the tail buffer.
// ffmpeg terminates status lines with \r, so the scanner splits on both \r
// and \n.
func scanProgress(r io.Reader, tail *tailBuffer, emit func(Progress)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	scanner.Split(scanCRLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if prog, ok := parseProgressLine(line); ok {
			emit(prog)
			continue
		}

		tail.Add(line)
	}
}

// parseProgressLine extracts a progress sample from an ffmpeg status line.
// Returns false for lines that are not status lines.
func parseProgressLine(line string) (Progress, bool) {
	tm := reTime.FindStringSubmatch(line)
	if tm == nil || !strings.Contains(line, "frame=") {
		return Progress{}, false
	}

	var prog Progress

	if m := reFrame.FindStringSubmatch(line); m != nil {
		prog.Frames, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := reFPS.FindStringSubmatch(line); m != nil {
		prog.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := reBitrate.FindStringSubmatch(line); m != nil {
		prog.Bitrate, _ = strconv.ParseFloat(m[1], 64)
	}

	hh, _ := strconv.ParseFloat(tm[1], 64)
	mm, _ := strconv.ParseFloat(tm[2], 64)
	ss, _ := strconv.ParseFloat(tm[3], 64)
	prog.Elapsed = time.Duration((hh*3600 + mm*60 + ss) * float64(time.Second))

	return prog, true
}

// scanCRLines is a bufio.SplitFunc that treats both \r and \n as line
// terminators.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) >= t.max {
		t.lines = t.lines[1:]
	}
	t.lines = append(t.lines, line)
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}
