package aippt

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aippt/aippt/template"
	"github.com/k1LoW/errors"
	"github.com/k1LoW/exec"
)

// ImageSearcher finds image sources (URLs or file paths) for a query.
type ImageSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// commandSearcher implements ImageSearcher with an external command.
type commandSearcher struct {
	searchCmd string
}

// NewCommandSearcher returns an ImageSearcher running searchCmd once per query.
func NewCommandSearcher(searchCmd string) ImageSearcher {
	return &commandSearcher{searchCmd: searchCmd}
}

// Search runs the search command with the environment variable AIPPT_IMAGE_QUERY set.
// The command also supports template variables: {{query}} and {{env.XXX}}.
// Every non-empty stdout line not starting with # is an image source.
func (c *commandSearcher) Search(ctx context.Context, query string) (_ []string, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	const envImageQuery = "AIPPT_IMAGE_QUERY"

	env := template.EnvironToMap()
	env[envImageQuery] = query
	store := map[string]any{
		"query": query,
		"env":   env,
	}
	expandedCmd, err := template.Expand(c.searchCmd, store)
	if err != nil {
		return nil, fmt.Errorf("failed to expand image search command template: %w", err)
	}
	name, args, err := buildCommand(expandedCmd)
	if err != nil {
		return nil, fmt.Errorf("failed to build image search command: %w", err)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, envImageQuery+"="+query)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run image search command: %w\nstderr: %s", err, stderr.String())
	}

	var sources []string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sources = append(sources, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image search output: %w", err)
	}
	return sources, nil
}

// ImageQueries returns one search query per item wanting a picture:
// the image description of text_image items, falling back to their title, and the cover title.
func ImageQueries(items []Item) []string {
	var queries []string
	for _, item := range items {
		switch v := item.(type) {
		case *TextImage:
			if v.ImageDesc != "" {
				queries = append(queries, v.ImageDesc)
			} else if v.Title != "" {
				queries = append(queries, v.Title)
			}
		case *Cover:
			if v.Title != "" {
				queries = append(queries, v.Title)
			}
		}
	}
	return queries
}

// Search collects image sources for every query and loads them.
func (l *ImageLoader) Search(ctx context.Context, s ImageSearcher, queries []string) (_ []PoolImage, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	var sources []string
	for _, q := range queries {
		found, err := s.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return l.Load(ctx, sources...)
}

// buildCommand parses a command string and returns the command and arguments.
func buildCommand(cmdStr string) (string, []string, error) {
	shell, err := detectShell()
	if err != nil {
		return "", nil, err
	}
	return shell, []string{"-c", cmdStr}, nil
}

// detectShell detects the current shell.
func detectShell() (string, error) {
	shells := []string{
		os.Getenv("SHELL"),
		"/bin/bash",
		"/bin/sh",
	}
	for _, shell := range shells {
		if shell == "" {
			continue
		}
		if _, err := os.Stat(shell); err == nil {
			return shell, nil
		}
	}
	return "", fmt.Errorf("failed to detect shell")
}
