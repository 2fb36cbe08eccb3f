package core

// infer.go derives a column schema from a header-less cell grid.
//
// Row 0 is the header. Blank header cells are dropped, but each surviving
// header keeps its original position so ragged or sparse header rows still
// index the right data cells. A column is Number when every data cell at its
// position is blank or numeric, and Text otherwise. Every data row is
// examined; a single late text value flips the whole column to Text. A column
// with no values at all is therefore Number.

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// idStripRegex removes everything outside [a-z0-9] from a lower-cased header.
var idStripRegex = regexp.MustCompile(`[^a-z0-9]`)

// idSuffixLen is the length of the random suffix appended to column ids.
const idSuffixLen = 5

// Inference is the result of schema inference over a grid.
type Inference struct {
	Schema []ColumnSchema

	// Rows holds the data rows projected onto Schema: Rows[r][i] is the raw
	// cell for Schema[i]. Every row has exactly len(Schema) cells.
	Rows [][]any
}

// SuffixFunc returns a short random string used to disambiguate column ids.
type SuffixFunc func() string

// RandomSuffix returns the first characters of a fresh UUID.
func RandomSuffix() string {
	return uuid.NewString()[:idSuffixLen]
}

// Inferrer derives schemas from grids.
type Inferrer struct {
	suffix SuffixFunc
}

// NewInferrer creates an Inferrer. A nil suffix uses RandomSuffix.
func NewInferrer(suffix SuffixFunc) *Inferrer {
	if suffix == nil {
		suffix = RandomSuffix
	}
	return &Inferrer{suffix: suffix}
}

// Infer derives the schema and the projected data rows from grid.
// A grid with zero rows yields an empty schema and no rows.
func (in *Inferrer) Infer(grid RawGrid) Inference {
	if len(grid) == 0 {
		return Inference{}
	}

	header := grid[0]
	data := grid[1:]

	var positions []int
	var names []string
	for pos, cell := range header {
		if isBlank(cell) {
			continue
		}
		positions = append(positions, pos)
		names = append(names, strings.TrimSpace(RenderCell(cell)))
	}

	schema := make([]ColumnSchema, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		colType := ColumnNumber
		if !columnIsNumeric(data, positions[i]) {
			colType = ColumnText
		}
		schema[i] = ColumnSchema{
			ID:   in.uniqueID(name, used),
			Name: name,
			Type: colType,
		}
	}

	rows := make([][]any, len(data))
	for r, raw := range data {
		projected := make([]any, len(positions))
		for i, pos := range positions {
			if pos < len(raw) {
				projected[i] = raw[pos]
			}
		}
		rows[r] = projected
	}

	return Inference{Schema: schema, Rows: rows}
}

// columnIsNumeric reports whether every cell at pos is blank or numeric.
func columnIsNumeric(rows [][]any, pos int) bool {
	for _, row := range rows {
		if pos >= len(row) || isBlank(row[pos]) {
			continue
		}
		if _, ok := ParseNumber(row[pos]); !ok {
			return false
		}
	}
	return true
}

// ColumnIDBase normalises a header into the stem of a column id.
func ColumnIDBase(name string) string {
	return idStripRegex.ReplaceAllString(strings.ToLower(name), "")
}

// maxSuffixDraws bounds suffix redraws before a counter is appended.
const maxSuffixDraws = 8

// uniqueID builds "<stem>_<suffix>", drawing new suffixes until the id is
// unused within this schema.
func (in *Inferrer) uniqueID(name string, used map[string]bool) string {
	base := ColumnIDBase(name)
	for n := 0; ; n++ {
		id := base + "_" + in.suffix()
		if n >= maxSuffixDraws {
			id += strconv.Itoa(n)
		}
		if !used[id] {
			used[id] = true
			return id
		}
	}
}

// findColumn returns the schema entry with the given id.
func findColumn(schema []ColumnSchema, id string) (ColumnSchema, bool) {
	for _, col := range schema {
		if col.ID == id {
			return col, true
		}
	}
	return ColumnSchema{}, false
}
