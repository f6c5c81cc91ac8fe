/*
Copyright © 2025 Ken'ichiro Oyama <k1lowxb@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/aippt/aippt"
	"github.com/aippt/aippt/config"
	"github.com/aippt/aippt/handler/dot"
	"github.com/aippt/aippt/md"
	"github.com/fsnotify/fsnotify"
	"github.com/k1LoW/errors"
	"github.com/prometheus/client_golang/prometheus"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	catalog     string
	images      []string
	imageSearch string
	seed        int64
	output      string
	page        string
	metrics     string
	watch       bool
}

var buildOpts = &buildOptions{}

var buildCmd = &cobra.Command{
	Use:   "build [CONTENT_FILE]",
	Short: "build slides from content items and a template catalog",
	Long: `build slides from content items and a template catalog.

CONTENT_FILE holds content items as JSON lines, or a markdown outline when it ends with .md.
Content items are read from stdin when CONTENT_FILE is omitted or "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := "-"
		if len(args) > 0 {
			in = args[0]
		}
		cfg, err := config.Load(profile)
		if err != nil {
			return err
		}
		b, err := newBuilder(cmd, cfg, buildOpts, in)
		if err != nil {
			return err
		}
		defer b.close()
		if err := b.build(cmd.Context()); err != nil {
			return err
		}
		if !buildOpts.watch {
			return nil
		}
		if in == "-" {
			return fmt.Errorf("--watch requires CONTENT_FILE")
		}
		return b.watch(cmd.Context())
	},
}

// builder runs one build per invocation, or one per change in watch mode.
type builder struct {
	cfg     *config.Config
	opts    *buildOptions
	in      string
	stdin   io.Reader
	stdout  io.Writer
	logger  *slog.Logger
	logFile *os.File
}

func newBuilder(cmd *cobra.Command, cfg *config.Config, opts *buildOptions, in string) (_ *builder, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	o := *opts
	if !cmd.Flags().Changed("catalog") && cfg.Catalog != "" {
		o.catalog = cfg.Catalog
	}
	if !cmd.Flags().Changed("images") && len(cfg.Images) > 0 {
		o.images = cfg.Images
	}
	if !cmd.Flags().Changed("image-search") && cfg.ImageSearchCommand != "" {
		o.imageSearch = cfg.ImageSearchCommand
	}
	if !cmd.Flags().Changed("seed") && cfg.Seed != nil {
		o.seed = *cfg.Seed
	}
	if o.catalog == "" {
		return nil, fmt.Errorf("template catalog is required. Use --catalog or set catalog in the config file")
	}
	b := &builder{
		cfg:    cfg,
		opts:   &o,
		in:     in,
		stdin:  cmd.InOrStdin(),
		stdout: cmd.OutOrStdout(),
	}
	if err := b.setupLogger(o.output != ""); err != nil {
		return nil, err
	}
	return b, nil
}

// setupLogger fans out to a JSON log file in the state directory, the tail
// buffer for error.json and, when the slides do not go to stdout, the progress dots.
func (b *builder) setupLogger(progress bool) error {
	if err := os.MkdirAll(config.StateHomePath(), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	f, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	b.logFile = f
	handlers := []slog.Handler{
		slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(tb, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	if progress {
		h, err := dot.New(slog.NewJSONHandler(io.Discard, nil))
		if err != nil {
			return err
		}
		handlers = append(handlers, h)
	}
	b.logger = slog.New(slogmulti.Fanout(handlers...))
	return nil
}

func (b *builder) close() {
	if b.logFile != nil {
		_ = b.logFile.Close()
	}
}

func (b *builder) build(ctx context.Context) (err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	catalog, err := aippt.LoadCatalog(b.opts.catalog)
	if err != nil {
		return err
	}
	items, err := b.readItems()
	if err != nil {
		return err
	}
	images, err := b.loadImages(ctx, items)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []aippt.Option{
		aippt.WithLogger(b.logger),
		aippt.WithRegisterer(reg),
		aippt.WithRules(rulesFromConfig(b.cfg.Rules)),
	}
	if b.opts.seed != 0 {
		opts = append(opts, aippt.WithSeed(b.opts.seed))
	}
	if b.cfg.Fonts.Regular != "" {
		ttf, err := os.ReadFile(b.cfg.Fonts.Regular)
		if err != nil {
			return fmt.Errorf("failed to read font %s: %w", b.cfg.Fonts.Regular, err)
		}
		m, err := aippt.NewFontMeasurer(ttf)
		if err != nil {
			return err
		}
		opts = append(opts, aippt.WithMeasurer(m))
	}
	a, err := aippt.New(catalog, opts...)
	if err != nil {
		return err
	}
	slides, report, err := a.Build(ctx, items, images)
	if err != nil {
		return err
	}

	pages, err := pageToPages(b.opts.page, len(slides))
	if err != nil {
		return err
	}
	selected := make(aippt.Slides, 0, len(pages))
	for _, p := range pages {
		selected = append(selected, slides[p-1])
	}
	if err := b.writeSlides(selected); err != nil {
		return err
	}
	if b.opts.metrics != "" {
		if err := prometheus.WriteToTextfile(b.opts.metrics, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if b.opts.output != "" {
		printReport(b.stdout, report)
	}
	return nil
}

// readItems reads content items from a markdown outline or from JSON lines.
func (b *builder) readItems() ([]aippt.Item, error) {
	if strings.EqualFold(filepath.Ext(b.in), ".md") {
		o, err := md.ParseFile(b.in)
		if err != nil {
			return nil, err
		}
		return o.Items(), nil
	}
	r := b.stdin
	if b.in != "-" {
		f, err := os.Open(b.in)
		if err != nil {
			return nil, fmt.Errorf("failed to open content %s: %w", b.in, err)
		}
		defer f.Close()
		r = f
	}
	dec := aippt.NewItemDecoder(r, b.logger)
	items, err := dec.DecodeAll()
	if err != nil {
		return nil, err
	}
	stats := dec.Stats()
	b.logger.Info("decoded content", slog.Int("items", stats.Items), slog.Int("repaired", stats.Repaired), slog.Int("skipped", stats.Skipped))
	return items, nil
}

func (b *builder) loadImages(ctx context.Context, items []aippt.Item) ([]aippt.PoolImage, error) {
	if len(b.opts.images) == 0 && b.opts.imageSearch == "" {
		return nil, nil
	}
	opts := []aippt.ImageLoaderOption{
		aippt.WithLoaderLogger(b.logger),
	}
	timeout, err := b.cfg.ImageProbe.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		opts = append(opts, aippt.WithProbeTimeout(timeout))
	}
	if b.cfg.ImageProbe.Concurrency > 0 {
		opts = append(opts, aippt.WithProbeConcurrency(b.cfg.ImageProbe.Concurrency))
	}
	l, err := aippt.NewImageLoader(opts...)
	if err != nil {
		return nil, err
	}
	var images []aippt.PoolImage
	if len(b.opts.images) > 0 {
		images, err = l.Load(ctx, b.opts.images...)
		if err != nil {
			return nil, err
		}
	}
	if b.opts.imageSearch != "" {
		found, err := l.Search(ctx, aippt.NewCommandSearcher(b.opts.imageSearch), aippt.ImageQueries(items))
		if err != nil {
			return nil, err
		}
		images = append(images, found...)
	}
	return images, nil
}

func (b *builder) writeSlides(slides aippt.Slides) error {
	out, err := json.MarshalIndent(slides, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal slides: %w", err)
	}
	out = append(out, '\n')
	if b.opts.output == "" {
		_, err := b.stdout.Write(out)
		return err
	}
	if err := os.WriteFile(b.opts.output, out, 0o600); err != nil {
		return fmt.Errorf("failed to write slides to %s: %w", b.opts.output, err)
	}
	return nil
}

// watch rebuilds whenever the content file or the catalog changes.
func (b *builder) watch(ctx context.Context) (err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	var targets []string
	for _, f := range []string{b.in, b.opts.catalog} {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		targets = append(targets, abs)
		// watch the directory so that editors replacing the file are noticed
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", f, err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !slices.Contains(targets, filepath.Clean(ev.Name)) {
				continue
			}
			if err := b.build(ctx); err != nil {
				b.logger.Error("failed to rebuild", slog.String("file", ev.Name), slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.logger.Error("failed to watch", slog.String("error", err.Error()))
		}
	}
}

func rulesFromConfig(rules []config.Rule) []aippt.Rule {
	var rs []aippt.Rule
	for _, r := range rules {
		rs = append(rs, aippt.Rule{If: r.If, Template: r.Template, Skip: r.Skip})
	}
	return rs
}

func printReport(w io.Writer, r *aippt.Report) {
	_, _ = fmt.Fprintf(w, "%d items, %d slides", r.Items, r.Slides)
	if r.Skipped > 0 {
		_, _ = fmt.Fprintf(w, ", %d skipped", r.Skipped)
	}
	if n := sum(r.Dropped); n > 0 {
		_, _ = fmt.Fprintf(w, ", %d dropped", n)
	}
	if n := sum(r.Fallbacks); n > 0 {
		_, _ = fmt.Fprintf(w, ", %d fallbacks", n)
	}
	if r.Overflows > 0 {
		_, _ = fmt.Fprintf(w, ", %d overflows", r.Overflows)
	}
	if r.PoolExhausted > 0 {
		_, _ = fmt.Fprintf(w, ", %d without images", r.PoolExhausted)
	}
	_, _ = fmt.Fprintln(w)
}

func sum(m map[aippt.SlideType]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildOpts.catalog, "catalog", "c", "", "template catalog JSON file")
	buildCmd.Flags().StringSliceVarP(&buildOpts.images, "images", "i", nil, "image sources: files, directories, pool JSON files or URLs")
	buildCmd.Flags().StringVarP(&buildOpts.imageSearch, "image-search", "", "", "command printing image sources for {{query}}")
	buildCmd.Flags().Int64VarP(&buildOpts.seed, "seed", "s", 0, "seed for template and image picks")
	buildCmd.Flags().StringVarP(&buildOpts.output, "output", "o", "", "output file (default stdout)")
	buildCmd.Flags().StringVarP(&buildOpts.page, "page", "p", "", "pages to output, e.g. 1,3-5")
	buildCmd.Flags().StringVarP(&buildOpts.metrics, "metrics", "", "", "write Prometheus metrics to this textfile")
	buildCmd.Flags().BoolVarP(&buildOpts.watch, "watch", "w", false, "rebuild when the content file or the catalog changes")
}

func pageToPages(page string, total int) ([]int, error) {
	if page == "" {
		// If no page is specified, return all pages
		pages := make([]int, total)
		for i := 0; i < total; i++ {
			pages[i] = i + 1
		}
		return pages, nil
	}

	var result []int
	for _, part := range strings.Split(page, ",") {
		if !strings.Contains(part, "-") {
			pageNum, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid page number: %s", part)
			}
			if pageNum < 1 || pageNum > total {
				return nil, fmt.Errorf("page number out of range: %d (total pages: %d)", pageNum, total)
			}
			result = append(result, pageNum)
			continue
		}
		start, end, _ := strings.Cut(part, "-")
		startPage, endPage := 1, total
		var err error
		if start != "" {
			if startPage, err = strconv.Atoi(start); err != nil {
				return nil, fmt.Errorf("invalid page number: %s", start)
			}
		}
		if end != "" {
			if endPage, err = strconv.Atoi(end); err != nil {
				return nil, fmt.Errorf("invalid page number: %s", end)
			}
		}
		if startPage < 1 || startPage > total || endPage < 1 || endPage > total || startPage > endPage {
			return nil, fmt.Errorf("invalid page range: %s (total pages: %d)", part, total)
		}
		for i := startPage; i <= endPage; i++ {
			result = append(result, i)
		}
	}
	return result, nil
}
