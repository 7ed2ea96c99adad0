package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter is how the syncer talks to the person at the machine.
type Prompter interface {
	// TargetFolder asks where to copy the drive. An empty answer cancels.
	TargetFolder(ctx context.Context, def string) (string, error)
	// ConfirmPurge asks whether to empty the source after copying.
	ConfirmPurge(ctx context.Context, copied int) (bool, error)
	Notify(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// ConsolePrompter asks questions line by line on a terminal. A single
// goroutine owns the input, so an answer typed after a cancelled question
// goes to the next one.
type ConsolePrompter struct {
	mu    sync.Mutex
	in    io.Reader
	out   io.Writer
	once  sync.Once
	lines chan consoleLine
}

type consoleLine struct {
	text string
	err  error
}

func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{in: in, out: out, lines: make(chan consoleLine)}
}

func (p *ConsolePrompter) TargetFolder(ctx context.Context, def string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if def != "" {
		fmt.Fprintf(p.out, "Target folder [%s] (\"-\" to cancel): ", def)
	} else {
		fmt.Fprint(p.out, "Target folder (empty to cancel): ")
	}
	line, err := p.readLine(ctx)
	if err != nil {
		return "", err
	}
	switch line {
	case "-":
		return "", nil
	case "":
		return def, nil
	}
	return line, nil
}

func (p *ConsolePrompter) ConfirmPurge(ctx context.Context, copied int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "Transfer finished (%d file(s) copied). Delete the source? [y/N]: ", copied)
	line, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes", "o", "oui":
		return true, nil
	}
	return false, nil
}

func (p *ConsolePrompter) Notify(_ context.Context, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, msg)
}

func (p *ConsolePrompter) Error(_ context.Context, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "error:", msg)
}

func (p *ConsolePrompter) readLine(ctx context.Context) (string, error) {
	p.once.Do(func() { go p.readLoop() })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}

// readLoop feeds lines to readLine until the input fails, then closes lines.
func (p *ConsolePrompter) readLoop() {
	defer close(p.lines)
	r := bufio.NewReader(p.in)
	for {
		s, err := r.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		p.lines <- consoleLine{strings.TrimSpace(s), err}
		if err != nil {
			return
		}
	}
}

// AutoPrompter never asks: it takes the configured folder and answers the
// purge question with Purge.
type AutoPrompter struct {
	Purge bool
	Out   io.Writer
}

func (p AutoPrompter) TargetFolder(_ context.Context, def string) (string, error) {
	return def, nil
}

func (p AutoPrompter) ConfirmPurge(context.Context, int) (bool, error) {
	return p.Purge, nil
}

func (p AutoPrompter) Notify(_ context.Context, msg string) {
	if p.Out != nil {
		fmt.Fprintln(p.Out, msg)
	}
}

func (p AutoPrompter) Error(_ context.Context, msg string) {
	if p.Out != nil {
		fmt.Fprintln(p.Out, "error:", msg)
	}
}
