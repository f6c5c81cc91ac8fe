package aippt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/k1LoW/errors"
	"github.com/kaptinlin/jsonrepair"
)

const maxLineSize = 1024 * 1024

// DecodeStats counts what an ItemDecoder did with its input lines.
type DecodeStats struct {
	Lines    int `json:"lines"`
	Items    int `json:"items"`
	Repaired int `json:"repaired"`
	Skipped  int `json:"skipped"`
}

// ItemDecoder reads content items from JSON lines as streamed by a text generation service.
// Blank lines and markdown fences are ignored, malformed lines are repaired when possible and dropped otherwise.
type ItemDecoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	queue   []Item
	stats   DecodeStats
}

func NewItemDecoder(r io.Reader, logger *slog.Logger) *ItemDecoder {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &ItemDecoder{
		scanner: scanner,
		logger:  logger,
	}
}

// Decode returns the next content item, or io.EOF when the input is exhausted.
func (d *ItemDecoder) Decode() (_ Item, err error) {
	defer func() {
		if !errors.Is(err, io.EOF) {
			err = errors.WithStack(err)
		}
	}()
	for len(d.queue) == 0 {
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read content stream: %w", err)
			}
			return nil, io.EOF
		}
		d.stats.Lines++
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		items, repaired, err := decodeLine(line)
		if err != nil {
			d.stats.Skipped++
			d.logger.Warn("skipped malformed line", slog.Int("line", d.stats.Lines), slog.String("error", err.Error()))
			continue
		}
		if repaired {
			d.stats.Repaired++
			d.logger.Info("repaired malformed line", slog.Int("line", d.stats.Lines))
		}
		d.queue = append(d.queue, items...)
	}
	item := d.queue[0]
	d.queue = d.queue[1:]
	d.stats.Items++
	return item, nil
}

// DecodeAll reads every remaining content item.
func (d *ItemDecoder) DecodeAll() ([]Item, error) {
	var items []Item
	for {
		item, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

// Stats returns the counters collected so far.
func (d *ItemDecoder) Stats() DecodeStats {
	return d.stats
}

// decodeLine decodes a line holding one record or an array of records.
func decodeLine(line string) (Items, bool, error) {
	items, err := parseLine(line)
	if err == nil {
		return items, false, nil
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
		return nil, false, err
	}
	fixed, rerr := jsonrepair.JSONRepair(line)
	if rerr != nil {
		return nil, false, err
	}
	items, err = parseLine(fixed)
	if err != nil {
		return nil, false, err
	}
	return items, true, nil
}

func parseLine(line string) (Items, error) {
	if strings.HasPrefix(line, "[") {
		var items Items
		if err := json.Unmarshal([]byte(line), &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	item, err := UnmarshalItem([]byte(line))
	if err != nil {
		return nil, err
	}
	return Items{item}, nil
}
