package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"casedoc/pkg/capture"
	"casedoc/pkg/domain"
)

// Uploader stores a finished recording on the documentation service.
type Uploader interface {
	UploadArtifact(ctx context.Context, raw domain.RawArtifact) (domain.AudioArtifact, error)
}

// session drives one capture from start to upload or cancel using
// line-oriented key commands.
type session struct {
	ctrl   *capture.Controller
	upload Uploader
	out    io.Writer
	tick   time.Duration
}

// run returns the uploaded artifact, or ok=false when the user cancelled.
func (s *session) run(ctx context.Context, in io.Reader) (domain.AudioArtifact, bool, error) {
	if err := s.ctrl.Start(ctx); err != nil {
		return domain.AudioArtifact{}, false, err
	}
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	cmds := readCommands(readCtx, in)

	tick := s.tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	fmt.Fprintln(s.out, "recording  [p] pause  [r] resume  [s] stop  [q] cancel")
	for {
		select {
		case <-ctx.Done():
			s.ctrl.Reset()
			return domain.AudioArtifact{}, false, ctx.Err()
		case <-ticker.C:
			fmt.Fprintf(s.out, "\r%s %-9s", formatElapsed(s.ctrl.Elapsed()), s.ctrl.State())
		case cmd, open := <-cmds:
			if !open {
				cmd = "q"
			}
			switch cmd {
			case "":
			case "p":
				s.report(s.ctrl.Pause())
			case "r":
				s.report(s.ctrl.Resume())
			case "s":
				raw, err := s.ctrl.Stop()
				if err != nil {
					s.ctrl.Reset()
					return domain.AudioArtifact{}, false, err
				}
				return s.confirm(ctx, raw, cmds)
			case "q":
				s.ctrl.Reset()
				fmt.Fprintln(s.out, "\nrecording cancelled")
				return domain.AudioArtifact{}, false, nil
			default:
				fmt.Fprintf(s.out, "\nunknown command %q\n", cmd)
			}
		}
	}
}

// confirm asks whether to upload the stopped recording. A failed upload keeps
// the recording so it can be retried.
func (s *session) confirm(ctx context.Context, raw domain.RawArtifact, cmds <-chan string) (domain.AudioArtifact, bool, error) {
	fmt.Fprintf(s.out, "\nstopped at %s (%d bytes)  [y] upload  [n] discard\n", formatElapsed(time.Duration(raw.DurationMs)*time.Millisecond), len(raw.Data))
	for {
		var cmd string
		select {
		case <-ctx.Done():
			s.discard()
			return domain.AudioArtifact{}, false, ctx.Err()
		case c, open := <-cmds:
			if !open {
				c = "n"
			}
			cmd = c
		}
		switch cmd {
		case "y":
			art, err := s.upload.UploadArtifact(ctx, raw)
			if err != nil {
				fmt.Fprintf(s.out, "upload failed: %v  [y] retry  [n] discard\n", err)
				continue
			}
			s.ctrl.Reset()
			fmt.Fprintf(s.out, "saved artifact %s\n", art.ID)
			return art, true, nil
		case "n", "q":
			s.discard()
			fmt.Fprintln(s.out, "recording discarded")
			return domain.AudioArtifact{}, false, nil
		}
	}
}

func (s *session) discard() {
	if err := s.ctrl.Discard(); err != nil {
		s.ctrl.Reset()
	}
}

func (s *session) report(err error) {
	if err != nil {
		fmt.Fprintf(s.out, "\n%v\n", err)
	}
}

func readCommands(ctx context.Context, in io.Reader) <-chan string {
	cmds := make(chan string)
	go func() {
		defer close(cmds)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
			select {
			case cmds <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return cmds
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
