// Package grbltest provides an in-memory Grbl controller.
package grbltest

import (
	"io"
	"strings"
	"sync"
	"time"
)

// Device records every line written to it and answers with replies.
//
// The realtime bytes `?`, `!`, `~` and 0x18 are not part of a line; `?` is
// answered with Status.
type Device struct {
	// Reply returns the response lines for one received line. The default
	// is Acks `ok` lines.
	Reply func(line string) []string

	// Delay is waited before replying to a line.
	Delay time.Duration

	Acks   int
	Status string

	mx    sync.Mutex
	lines []string
	buf   string

	pr *io.PipeReader
	pw *io.PipeWriter
}

// New returns a device that acknowledges each line acks times.
func New(acks int) *Device {
	pr, pw := io.Pipe()
	return &Device{
		Acks:   acks,
		Status: "<Idle|MPos:0.000,0.000,0.000|FS:0,0>",
		pr:     pr,
		pw:     pw,
	}
}

func (d *Device) Read(p []byte) (int, error) { return d.pr.Read(p) }

func (d *Device) Write(p []byte) (int, error) {
	var replies []string
	d.mx.Lock()
	for _, b := range p {
		switch b {
		case '?':
			replies = append(replies, d.Status)
			continue
		case '!', '~', 0x18:
			continue
		}
		if b != '\n' {
			d.buf += string(b)
			continue
		}
		line := strings.TrimRight(d.buf, "\r")
		d.buf = ""
		d.lines = append(d.lines, line)
		replies = append(replies, d.reply(line)...)
	}
	d.mx.Unlock()

	if d.Delay > 0 && len(replies) > 0 {
		time.Sleep(d.Delay)
	}
	for _, r := range replies {
		if _, err := io.WriteString(d.pw, r+"\r\n"); err != nil {
			return len(p), nil
		}
	}
	return len(p), nil
}

func (d *Device) reply(line string) []string {
	if d.Reply != nil {
		return d.Reply(line)
	}
	res := make([]string, d.Acks)
	for i := range res {
		res[i] = "ok"
	}
	return res
}

// Lines returns every line received so far, without line endings.
func (d *Device) Lines() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]string(nil), d.lines...)
}

func (d *Device) Close() error {
	d.pw.Close()
	return d.pr.Close()
}
