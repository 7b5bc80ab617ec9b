package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/codetree/pkg/engine"
	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"

	percentScale = 100
	shortHashLen = 12
	noneLabel    = "-"
)

// ErrFileNotInTree is returned by --file for a path missing from the output tree.
var ErrFileNotInTree = errors.New("file not in analyzed tree")

func validFormat(format string) bool {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return true
	default:
		return false
	}
}

func render(w io.Writer, result *engine.Result, format string, top int) error {
	switch format {
	case formatJSON:
		return renderJSON(w, result)
	case formatYAML:
		return renderYAML(w, result)
	case formatTable:
		return renderTable(w, result, top)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// renderFile renders the blob at path alone.
func renderFile(w io.Writer, result *engine.Result, path, format string, top int) error {
	if result.Tree == nil {
		return fmt.Errorf("%w: %s", ErrFileNotInTree, path)
	}

	blob, ok := result.Tree.Lookup(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotInTree, path)
	}

	switch format {
	case formatJSON:
		return renderJSON(w, blob)
	case formatYAML:
		return renderYAML(w, blob)
	case formatTable:
		_, err := io.WriteString(w, fileDetail(blob, top)+"\n")
		if err != nil {
			return fmt.Errorf("write table: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

// renderYAML emits the JSON document shape as YAML so both formats share
// field names and node type tags.
func renderYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	var doc any

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err = enc.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

func renderTable(w io.Writer, result *engine.Result, top int) error {
	if result.Tree == nil {
		shallow := *result
		shallow.Tree = &filetree.Tree{}
		result = &shallow
	}

	var buf bytes.Buffer

	buf.WriteString(statusLine(result))
	buf.WriteString("\n\n")
	buf.WriteString(summaryTable(result))
	buf.WriteString("\n\n")
	buf.WriteString(authorTable(result.Tree, top))
	buf.WriteString("\n\n")
	buf.WriteString(fileTable(result.Tree, top))
	buf.WriteString("\n")

	_, err := w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

func statusLine(result *engine.Result) string {
	if result.FromCache() {
		return color.GreenString("served from cache (updated %s)", humanize.Time(result.UpdatedAt))
	}

	recomputed := make([]string, 0, len(result.Recomputed))
	for _, item := range result.Recomputed {
		recomputed = append(recomputed, string(item))
	}

	read := "incremental read"
	if result.FullRead {
		read = "full read"
	}

	line := color.CyanString("%s, %s new commits, recomputed: %s",
		read, humanize.Comma(int64(result.NewCommits)), joinOrNone(recomputed))

	dropped := result.Attribution.Unresolved + result.Attribution.MissingBlob
	if dropped > 0 || result.Attribution.Merges > 0 {
		line += "\n" + color.YellowString("%s changes dropped, %s merges attributed to first parent",
			humanize.Comma(int64(dropped)), humanize.Comma(int64(result.Attribution.Merges)))
	}

	return line
}

func summaryTable(result *engine.Result) string {
	blobs := result.Tree.Blobs()

	var size int64
	for _, blob := range blobs {
		size += blob.SizeInBytes
	}

	tw := table.NewWriter()
	tw.SetTitle("Summary")
	tw.AppendRows([]table.Row{
		{"Repository", result.Key.Repository},
		{"Branch", result.Key.Branch},
		{"Head", shortHash(result.Head)},
		{"Commits", humanize.Comma(int64(result.Commits))},
		{"Files", humanize.Comma(int64(len(blobs)))},
		{"Size", humanize.Bytes(uint64(max(size, 0)))},
		{"Authors", humanize.Comma(int64(len(result.Tree.Authors())))},
		{"Renames applied", humanize.Comma(int64(result.Renames.Applied))},
		{"Run", result.RunID},
	})

	return tw.Render()
}

type weighted struct {
	name   string
	weight int
}

// byWeight orders authors by weight, heaviest first, ties broken by name.
func byWeight(authors map[string]int) []weighted {
	rows := make([]weighted, 0, len(authors))
	for name, weight := range authors {
		rows = append(rows, weighted{name: name, weight: weight})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].weight != rows[j].weight {
			return rows[i].weight > rows[j].weight
		}

		return rows[i].name < rows[j].name
	})

	return rows
}

func authorTable(root *filetree.Tree, top int) string {
	rows := byWeight(root.Authors())
	total := 0

	for _, row := range rows {
		total += row.weight
	}

	tw := table.NewWriter()
	tw.SetTitle("Top authors")
	tw.AppendHeader(table.Row{"Author", "Lines changed", "Share"})

	for _, row := range limit(rows, top) {
		share := 0.0
		if total > 0 {
			share = percentScale * float64(row.weight) / float64(total)
		}

		tw.AppendRow(table.Row{row.name, humanize.Comma(int64(row.weight)), fmt.Sprintf("%.1f%%", share)})
	}

	return tw.Render()
}

func fileTable(root *filetree.Tree, top int) string {
	blobs := root.Blobs()

	sort.SliceStable(blobs, func(i, j int) bool {
		if blobs[i].NoCommits != blobs[j].NoCommits {
			return blobs[i].NoCommits > blobs[j].NoCommits
		}

		return blobs[i].Path < blobs[j].Path
	})

	tw := table.NewWriter()
	tw.SetTitle("Most changed files")
	tw.AppendHeader(table.Row{"Path", "Commits", "Top author", "Last change"})

	for _, blob := range limit(blobs, top) {
		author, _ := blob.TopAuthor()
		if author == "" {
			author = noneLabel
		}

		lastChange := noneLabel
		if blob.LastChangeEpoch != nil {
			lastChange = humanize.Time(unixTime(*blob.LastChangeEpoch))
		}

		tw.AppendRow(table.Row{blob.Path, humanize.Comma(int64(blob.NoCommits)), author, lastChange})
	}

	return tw.Render()
}

func fileDetail(blob *filetree.Blob, top int) string {
	lastChange := noneLabel
	if blob.LastChangeEpoch != nil {
		lastChange = humanize.Time(unixTime(*blob.LastChangeEpoch))
	}

	language := blob.Language
	if language == "" {
		language = noneLabel
	}

	tw := table.NewWriter()
	tw.SetTitle(blob.Path)
	tw.AppendRows([]table.Row{
		{"Previous paths", joinOrNone(blob.PreviousPaths)},
		{"Commits", humanize.Comma(int64(blob.NoCommits))},
		{"Last change", lastChange},
		{"Language", language},
		{"Size", humanize.Bytes(uint64(max(blob.SizeInBytes, 0)))},
	})

	at := table.NewWriter()
	at.SetTitle("Authors")
	at.AppendHeader(table.Row{"Author", "Lines changed"})

	for _, row := range limit(byWeight(blob.Authors), top) {
		at.AppendRow(table.Row{row.name, humanize.Comma(int64(row.weight))})
	}

	commits := table.NewWriter()
	commits.SetTitle("Recent commits")

	for _, hash := range limit(blob.Commits, top) {
		commits.AppendRow(table.Row{shortHash(hash)})
	}

	return tw.Render() + "\n\n" + at.Render() + "\n\n" + commits.Render()
}

func limit[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}

	return items[:n]
}

func shortHash(hash string) string {
	if len(hash) > shortHashLen {
		return hash[:shortHashLen]
	}

	return hash
}

func unixTime(epoch int64) time.Time {
	return time.Unix(epoch, 0)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return noneLabel
	}

	return strings.Join(items, ", ")
}
