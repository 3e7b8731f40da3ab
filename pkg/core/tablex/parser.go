// Package tablex parses EDGAR HTML tables into a dense grid IR with
// row/column spans expanded, then detects header rows, role columns and
// bank columns to emit (bank, role, evidence) triples.
package tablex

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// roleKeywords drive role-column detection and per-cell role scans.
var roleKeywords = []string{
	// bond underwriting
	"bookrunner", "joint bookrunner", "active bookrunner", "passive bookrunner",
	"co-manager", "co manager", "lead manager", "manager",
	"underwriter", "senior underwriter", "lead underwriter",
	// loan arranging
	"arranger", "lead arranger", "joint lead arranger", "mandated lead arranger",
	"administrative agent", "admin agent", "syndication agent", "documentation agent",
	"collateral agent", "paying agent",
	// advisory
	"financial advisor", "financial adviser", "advisor", "adviser",
	"fairness opinion",
}

// bankNameRE matches the large global banks by name.
var bankNameRE = regexp.MustCompile(`(?i)\b(?:` + strings.Join([]string{
	`J\.?P\.?\s*Morgan|JPMorgan`,
	`Goldman\s*Sachs|GS`,
	`Morgan\s*Stanley`,
	`Bank\s*of\s*America|BofA|BAML`,
	`Citi(?:group|bank)?`,
	`Wells\s*Fargo`,
	`Barclays`,
	`Deutsche\s*Bank`,
	`Credit\s*Suisse`,
	`UBS`,
	`HSBC`,
	`BNP\s*Paribas`,
	`Societe\s*Generale`,
	`RBC|Royal\s*Bank\s*of\s*Canada`,
	`TD\s*Securities`,
	`Mizuho`,
	`MUFG|Mitsubishi\s*UFJ`,
	`SMBC|Sumitomo\s*Mitsui`,
}, "|") + `)\b`)

var (
	// bankSuffixRE is the fallback for banks outside the name list.
	bankSuffixRE = regexp.MustCompile(`(?i)\b(?:LLC|Inc\.?|N\.?A\.?|Bank|Securities|Capital)\s*$`)
	numericRE    = regexp.MustCompile(`^[\$\d,.\s]+$`)
)

var headerKeywords = []string{"name", "lender", "underwriter", "role", "institution", "amount", "commitment"}

// Detection thresholds over data rows.
const (
	roleColumnDensity = 0.3
	bankColumnDensity = 0.2
	maxHeaderRows     = 3
)

// Cell is one grid position. Span expansion copies the originating
// cell's text into every covered position.
type Cell struct {
	Text     string
	Row      int
	Col      int
	RowSpan  int
	ColSpan  int
	IsHeader bool
}

// Table is the dense rows x cols IR for one parsed table.
type Table struct {
	Cells       [][]Cell
	HeaderRows  int
	RoleColumn  int // -1 when absent
	BankColumns []int
	NumRows     int
	NumCols     int
}

// BankRole is one extracted (bank, role) pair with row evidence.
type BankRole struct {
	BankName string
	Role     string
	Row      int
	Col      int
	Evidence string
}

// ParseTables parses every <table> in the HTML into a Table IR and runs
// header, role-column and bank-column detection on each.
func ParseTables(rawHTML string) ([]*Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	var tables []*Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		t := parseTable(sel)
		if t == nil || t.NumRows == 0 {
			return
		}
		t.detectHeaders()
		t.detectRoleColumn()
		t.detectBankColumns()
		tables = append(tables, t)
	})
	return tables, nil
}

type rawCell struct {
	text     string
	rowSpan  int
	colSpan  int
	isHeader bool
}

func spanAttr(sel *goquery.Selection, name string) int {
	v, ok := sel.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func parseTable(sel *goquery.Selection) *Table {
	var raw [][]rawCell
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []rawCell
		tr.Find("td,th").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, rawCell{
				text:     cellText(cell),
				rowSpan:  spanAttr(cell, "rowspan"),
				colSpan:  spanAttr(cell, "colspan"),
				isHeader: goquery.NodeName(cell) == "th",
			})
		})
		raw = append(raw, row)
	})
	if len(raw) == 0 {
		return nil
	}

	maxCols := 0
	for _, row := range raw {
		total := 0
		for _, c := range row {
			total += c.colSpan
		}
		if total > maxCols {
			maxCols = total
		}
	}
	if maxCols == 0 {
		return nil
	}

	numRows := len(raw)
	grid := make([][]*Cell, numRows)
	for i := range grid {
		grid[i] = make([]*Cell, maxCols)
	}

	for rowIdx, row := range raw {
		colIdx := 0
		for _, rc := range row {
			for colIdx < maxCols && grid[rowIdx][colIdx] != nil {
				colIdx++
			}
			if colIdx >= maxCols {
				break
			}
			cell := &Cell{
				Text:     rc.text,
				Row:      rowIdx,
				Col:      colIdx,
				RowSpan:  rc.rowSpan,
				ColSpan:  rc.colSpan,
				IsHeader: rc.isHeader,
			}
			for r := rowIdx; r < rowIdx+rc.rowSpan && r < numRows; r++ {
				for c := colIdx; c < colIdx+rc.colSpan && c < maxCols; c++ {
					grid[r][c] = cell
				}
			}
			colIdx += rc.colSpan
		}
	}

	cells := make([][]Cell, numRows)
	for r := range grid {
		cells[r] = make([]Cell, maxCols)
		for c, cell := range grid[r] {
			if cell == nil {
				cells[r][c] = Cell{Row: r, Col: c}
			} else {
				cells[r][c] = *cell
			}
		}
	}

	return &Table{
		Cells:      cells,
		RoleColumn: -1,
		NumRows:    numRows,
		NumCols:    maxCols,
	}
}

// detectHeaders counts leading header rows: all-th rows among the first
// three, plus a keyworded first row of short labels.
func (t *Table) detectHeaders() {
	headerCount := 0

	for rowIdx, row := range t.Cells {
		if rowIdx >= maxHeaderRows {
			break
		}

		nonEmpty := 0
		allHeaders := true
		for _, cell := range row {
			if strings.TrimSpace(cell.Text) == "" {
				continue
			}
			nonEmpty++
			if !cell.IsHeader {
				allHeaders = false
			}
		}
		if nonEmpty > 0 && allHeaders {
			headerCount = rowIdx + 1
			continue
		}

		if rowIdx == 0 {
			allShort := true
			var texts []string
			for _, cell := range row {
				text := strings.TrimSpace(cell.Text)
				if text == "" {
					continue
				}
				texts = append(texts, strings.ToLower(text))
				if len(text) >= 30 {
					allShort = false
				}
			}
			if allShort && len(texts) > 0 {
				rowText := strings.Join(texts, " ")
				for _, kw := range headerKeywords {
					if strings.Contains(rowText, kw) {
						headerCount = 1
						break
					}
				}
			}
		}
	}

	t.HeaderRows = headerCount
}

func cellHasRoleKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range roleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// detectRoleColumn marks the first column whose role-keyword density
// across data rows exceeds the threshold.
func (t *Table) detectRoleColumn() {
	dataRows := t.NumRows - t.HeaderRows
	if t.NumCols == 0 || dataRows <= 0 {
		return
	}

	counts := make([]int, t.NumCols)
	for _, row := range t.Cells[t.HeaderRows:] {
		for colIdx, cell := range row {
			if cellHasRoleKeyword(cell.Text) {
				counts[colIdx]++
			}
		}
	}

	for colIdx, count := range counts {
		if float64(count)/float64(dataRows) > roleColumnDensity {
			t.RoleColumn = colIdx
			return
		}
	}
}

// detectBankColumns flags every column whose bank-name hit density
// across data rows exceeds the threshold.
func (t *Table) detectBankColumns() {
	dataRows := t.NumRows - t.HeaderRows
	if t.NumCols == 0 || dataRows <= 0 {
		return
	}

	counts := make([]int, t.NumCols)
	for _, row := range t.Cells[t.HeaderRows:] {
		for colIdx, cell := range row {
			if bankNameRE.MatchString(cell.Text) {
				counts[colIdx]++
			}
		}
	}

	for colIdx, count := range counts {
		if float64(count)/float64(dataRows) > bankColumnDensity {
			t.BankColumns = append(t.BankColumns, colIdx)
		}
	}
}

// headerRole infers a fallback role from header cells, in priority order.
func (t *Table) headerRole() string {
	for rowIdx := 0; rowIdx < t.HeaderRows; rowIdx++ {
		for _, cell := range t.Cells[rowIdx] {
			lower := strings.ToLower(cell.Text)
			switch {
			case strings.Contains(lower, "underwriter"):
				return "underwriter"
			case strings.Contains(lower, "lender"):
				return "lender"
			case strings.Contains(lower, "arranger"):
				return "arranger"
			case strings.Contains(lower, "bank"), strings.Contains(lower, "institution"):
				return "participant"
			}
		}
	}
	return ""
}

// isBankCell reports whether the text names a bank, via the global bank
// list or a corporate suffix that is not a bare number.
func isBankCell(text string) bool {
	if bankNameRE.MatchString(text) {
		return true
	}
	return bankSuffixRE.MatchString(text) && !numericRE.MatchString(text)
}

// ExtractBankRoles walks data rows emitting one (bank, role) pair per
// row that contains a bank cell. Role resolution order: role column,
// then role keywords in sibling cells, then the header-inferred role.
func (t *Table) ExtractBankRoles() []BankRole {
	var out []BankRole
	headerRole := t.headerRole()

	for rowIdx := t.HeaderRows; rowIdx < t.NumRows; rowIdx++ {
		row := t.Cells[rowIdx]

		bankName := ""
		bankCol := 0
		for colIdx, cell := range row {
			text := strings.TrimSpace(cell.Text)
			if text == "" {
				continue
			}
			if isBankCell(text) {
				bankName = text
				bankCol = colIdx
				break
			}
		}
		if bankName == "" {
			continue
		}

		role := ""
		if t.RoleColumn >= 0 && t.RoleColumn < len(row) {
			role = strings.TrimSpace(row[t.RoleColumn].Text)
		} else {
			for colIdx, cell := range row {
				if colIdx == bankCol {
					continue
				}
				if cellHasRoleKeyword(cell.Text) {
					role = strings.TrimSpace(cell.Text)
					break
				}
			}
		}
		if role == "" {
			role = headerRole
		}
		if role == "" {
			continue
		}

		var parts []string
		for _, cell := range row {
			if strings.TrimSpace(cell.Text) != "" {
				parts = append(parts, cell.Text)
			}
		}
		out = append(out, BankRole{
			BankName: bankName,
			Role:     role,
			Row:      rowIdx,
			Col:      bankCol,
			Evidence: strings.Join(parts, " | "),
		})
	}
	return out
}

// ExtractFinancingParticipants parses all tables and pools their
// bank-role extractions.
func ExtractFinancingParticipants(rawHTML string) ([]BankRole, error) {
	tables, err := ParseTables(rawHTML)
	if err != nil {
		return nil, err
	}
	var out []BankRole
	for _, t := range tables {
		out = append(out, t.ExtractBankRoles()...)
	}
	return out, nil
}
