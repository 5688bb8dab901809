package tabular

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/textnorm"
)

// DefaultHeaderMarkers are first-column tokens that identify the real header
// row of releases that carry title or notes rows above it.
var DefaultHeaderMarkers = []string{"uf", "codigo_municipio", "cod_municipio", "municipio", "cod_ibge", "ibge"}

// headerScanRows bounds the search for a header row.
const headerScanRows = 40

// SupportedSuffixes are the payload types Load understands.
var SupportedSuffixes = []string{".csv", ".txt", ".xls", ".xlsx", ".json", ".zip"}

type LoadOptions struct {
	HeaderMarkers []string
	SheetIndex    int
}

// IsSupported reports whether suffix (with or without dot) can be loaded.
func IsSupported(suffix string) bool {
	s := normSuffix(suffix)
	for _, v := range SupportedSuffixes {
		if v == s {
			return true
		}
	}
	return false
}

// Load parses raw according to suffix. Failures are KindParse errors.
func Load(raw []byte, suffix string, opts LoadOptions) (*Frame, error) {
	if len(opts.HeaderMarkers) == 0 {
		opts.HeaderMarkers = DefaultHeaderMarkers
	}
	var (
		f   *Frame
		err error
	)
	switch normSuffix(suffix) {
	case ".csv", ".txt":
		f, err = loadCSV(raw, opts)
	case ".xlsx":
		f, err = loadXLSX(raw, opts)
	case ".xls":
		f, err = loadXLS(raw, opts)
	case ".json":
		f, err = loadJSON(raw)
	case ".zip":
		f, err = loadZip(raw, opts)
	default:
		return nil, errs.Errorf(errs.KindParse, "unsupported suffix %q", suffix)
	}
	if err != nil {
		return nil, errs.E(errs.KindParse, "load "+normSuffix(suffix), err)
	}
	return f, nil
}

func normSuffix(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return s
}

// DecodeText returns raw as UTF-8, decoding Latin-1 when raw is not valid UTF-8.
func DecodeText(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// DetectSeparator picks among ';', ',' and tab the separator whose per-line
// count is most consistent across the first non-empty lines; ties go to the
// higher total count.
func DetectSeparator(text string) rune {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) >= 10 {
			break
		}
	}
	best, bestScore, bestTotal := ';', -1, -1
	for _, sep := range []rune{';', ',', '\t'} {
		freq := map[int]int{}
		total := 0
		for _, l := range lines {
			n := strings.Count(l, string(sep))
			total += n
			if n > 0 {
				freq[n]++
			}
		}
		score := 0
		for _, c := range freq {
			if c > score {
				score = c
			}
		}
		if score > bestScore || (score == bestScore && total > bestTotal) {
			best, bestScore, bestTotal = sep, score, total
		}
	}
	return best
}

func loadCSV(raw []byte, opts LoadOptions) (*Frame, error) {
	text := DecodeText(raw)
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = DetectSeparator(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromGrid(records, opts.HeaderMarkers)
}

func loadXLSX(raw []byte, opts LoadOptions) (*Frame, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer wb.Close()
	sheets := wb.GetSheetList()
	if opts.SheetIndex >= len(sheets) {
		return nil, fmt.Errorf("xlsx has %d sheets, want index %d", len(sheets), opts.SheetIndex)
	}
	rows, err := wb.GetRows(sheets[opts.SheetIndex])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return fromGrid(rows, opts.HeaderMarkers)
}

func loadXLS(raw []byte, opts LoadOptions) (*Frame, error) {
	wb, err := xls.OpenReader(bytes.NewReader(raw), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	sheet := wb.GetSheet(opts.SheetIndex)
	if sheet == nil {
		return nil, fmt.Errorf("xls has no sheet %d", opts.SheetIndex)
	}
	var grid [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		grid = append(grid, cells)
	}
	return fromGrid(grid, opts.HeaderMarkers)
}

// fromGrid locates the header row and builds the frame below it.
func fromGrid(grid [][]string, markers []string) (*Frame, error) {
	start := -1
	for i := 0; i < len(grid); i++ {
		if !blankRecord(grid[i]) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("no rows")
	}
	header := findHeader(grid, start, markers)
	return fromRecords(grid[header], grid[header+1:]), nil
}

// findHeader scans the first column for a marker token; the first non-blank
// row is the header when no marker is found.
func findHeader(grid [][]string, start int, markers []string) int {
	want := map[string]bool{}
	for _, m := range markers {
		want[textnorm.Column(m)] = true
	}
	limit := start + headerScanRows
	if limit > len(grid) {
		limit = len(grid)
	}
	for i := start; i < limit; i++ {
		if len(grid[i]) == 0 {
			continue
		}
		if want[textnorm.Column(grid[i][0])] && nonBlankCells(grid[i]) > 1 {
			return i
		}
	}
	return start
}

func blankRecord(rec []string) bool {
	return nonBlankCells(rec) == 0
}

func nonBlankCells(rec []string) int {
	n := 0
	for _, c := range rec {
		if trimCell(c) != "" {
			n++
		}
	}
	return n
}

func trimCell(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\ufeff\u00a0"))
}

func loadJSON(raw []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var records []map[string]any
	switch v := doc.(type) {
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				records = append(records, m)
			}
		}
	case map[string]any:
		feats, ok := v["features"].([]any)
		if !ok {
			return nil, fmt.Errorf("json object without features array")
		}
		for _, item := range feats {
			feat, _ := item.(map[string]any)
			if attrs, ok := feat["attributes"].(map[string]any); ok {
				records = append(records, attrs)
			} else if props, ok := feat["properties"].(map[string]any); ok {
				records = append(records, props)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported json document %T", doc)
	}

	var header []string
	index := map[string]int{}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(header)
				header = append(header, k)
			}
		}
	}
	grid := make([][]string, 0, len(records))
	for _, rec := range records {
		cells := make([]string, len(header))
		for k, v := range rec {
			cells[index[k]] = jsonCell(v)
		}
		grid = append(grid, cells)
	}
	return fromRecords(header, grid), nil
}

func jsonCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// loadZip loads the first member with a supported, non-zip suffix.
func loadZip(raw []byte, opts LoadOptions) (*Frame, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	members := append([]*zip.File(nil), zr.File...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	for _, m := range members {
		ext := normSuffix(path.Ext(m.Name))
		if m.FileInfo().IsDir() || ext == ".zip" || !IsSupported(ext) {
			continue
		}
		rc, err := m.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip member %s: %w", m.Name, err)
		}
		body, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip member %s: %w", m.Name, err)
		}
		return Load(body, ext, opts)
	}
	return nil, fmt.Errorf("zip has no supported member")
}
