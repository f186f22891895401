package subprocess

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/und3rrr/media-cleaner/log"
)

func streamOutput(src io.Reader, out io.Writer) {
	s := bufio.NewReader(src)
	for {
		var line []byte
		line, err := s.ReadSlice('\n')
		if err == io.EOF && len(line) == 0 {
			break
		}
		if err == io.EOF {
			log.LogNoRequestID("streamOutput() improper termination", "line", string(line))
			return
		}
		if err != nil {
			log.LogNoRequestID("streamOutput ReadSlice error", "err", err)
			return
		}
		_, err = out.Write(line)
		if err != nil {
			log.LogNoRequestID("streamOutput out.Write error", "err", err)
			return
		}
	}
}

func LogStdout(cmd *exec.Cmd) error {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %v", err)
	}
	go streamOutput(stdoutPipe, os.Stdout)
	return nil
}

func LogStderr(cmd *exec.Cmd) error {
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %v", err)
	}
	go streamOutput(stderrPipe, os.Stderr)
	return nil
}

// LogOutputs starts new goroutines to print cmd's stdout & stderr to our stdout & stderr
func LogOutputs(cmd *exec.Cmd) error {
	if err := LogStderr(cmd); err != nil {
		return err
	}
	if err := LogStdout(cmd); err != nil {
		return err
	}
	return nil
}

// HeadTailBuffer accumulates the first and last maxBytes bytes written to it,
// discarding the middle. Used to bound the size of stderr kept around for a
// toolchain failure report without holding the whole (sometimes enormous)
// ffmpeg log in memory.
type HeadTailBuffer struct {
	maxBytes int
	head     []byte
	tail     []byte
	total    int
}

func NewHeadTailBuffer(maxBytes int) *HeadTailBuffer {
	return &HeadTailBuffer{maxBytes: maxBytes}
}

func (b *HeadTailBuffer) Write(p []byte) (int, error) {
	b.total += len(p)
	if len(b.head) < b.maxBytes {
		room := b.maxBytes - len(b.head)
		if room > len(p) {
			room = len(p)
		}
		b.head = append(b.head, p[:room]...)
	}
	b.tail = append(b.tail, p...)
	if len(b.tail) > b.maxBytes {
		b.tail = b.tail[len(b.tail)-b.maxBytes:]
	}
	return len(p), nil
}

// Excerpt renders the captured head and tail, noting the elided middle when
// the stream was larger than twice maxBytes.
func (b *HeadTailBuffer) Excerpt() string {
	if b.total <= 2*b.maxBytes {
		return string(b.head) + string(b.tail[max(0, len(b.tail)-(b.total-len(b.head))):])
	}
	return fmt.Sprintf("%s\n...[%d bytes elided]...\n%s", b.head, b.total-2*b.maxBytes, b.tail)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
