// Package export writes session reports as Excel workbooks.
package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/career-fit/internal/types"
)

// Sheet names
const (
	SheetDistribution = "Distribution"
	SheetClusters     = "Clusters"
	SheetMatch        = "Match"
)

// NotAvailable is written where a value is null
const NotAvailable = "n/a"

// Report is everything exported for one session. Match is optional.
type Report struct {
	View      *types.ClusterView
	Match     *types.MatchResult
	Generated time.Time
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// WriteWorkbook writes the report to outputPath, adding an .xlsx extension if missing.
// It returns the path written.
func WriteWorkbook(outputPath string, report Report) (string, error) {
	if report.View == nil {
		return "", fmt.Errorf("report has no cluster view")
	}
	if report.Generated.IsZero() {
		report.Generated = time.Now()
	}
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath += ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDistribution); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(SheetClusters); err != nil {
		return "", err
	}

	styles, err := newStyles(f)
	if err != nil {
		return "", fmt.Errorf("failed to create styles: %w", err)
	}
	if err := writeDistributionSheet(f, styles, report); err != nil {
		return "", fmt.Errorf("failed to create distribution sheet: %w", err)
	}
	if err := writeClustersSheet(f, styles, report.View); err != nil {
		return "", fmt.Errorf("failed to create clusters sheet: %w", err)
	}
	if report.Match != nil {
		if _, err := f.NewSheet(SheetMatch); err != nil {
			return "", err
		}
		if err := writeMatchSheet(f, styles, report.Match); err != nil {
			return "", fmt.Errorf("failed to create match sheet: %w", err)
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save workbook %s: %w", outputPath, err)
	}
	return outputPath, nil
}

type styles struct {
	title   int
	header  int
	label   int
	cell    int
	wrap    int
	percent int
}

func newStyles(f *excelize.File) (*styles, error) {
	var s styles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	}); err != nil {
		return nil, err
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	}); err != nil {
		return nil, err
	}
	if s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return nil, err
	}
	if s.cell, err = f.NewStyle(&excelize.Style{Border: thinBorder}); err != nil {
		return nil, err
	}
	if s.wrap, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	}); err != nil {
		return nil, err
	}
	// built-in format 10 is 0.00%
	if s.percent, err = f.NewStyle(&excelize.Style{NumFmt: 10, Border: thinBorder}); err != nil {
		return nil, err
	}
	return &s, nil
}

func writeHeader(f *excelize.File, s *styles, sheet string, row int, headers []string) {
	for col, header := range headers {
		cell := fmt.Sprintf("%s%d", string(rune('A'+col)), row)
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, s.header)
	}
}

func freezeBelow(f *excelize.File, sheet string, row int) error {
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      row,
		TopLeftCell: fmt.Sprintf("A%d", row+1),
		ActivePane:  "bottomLeft",
	})
}

func writeDistributionSheet(f *excelize.File, s *styles, report Report) error {
	sheet := SheetDistribution
	view := report.View
	f.SetColWidth(sheet, "A", "A", 28)
	f.SetColWidth(sheet, "B", "B", 30)
	f.SetColWidth(sheet, "C", "C", 14)

	row := 1
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Role-Fit Report")
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row), s.title)
	if err := f.MergeCell(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row)); err != nil {
		return err
	}
	row += 2

	meta := [][2]any{
		{"Session:", view.SessionID},
		{"Generation:", view.Generation},
		{"Scoring mode:", view.Mode},
		{"Generated:", report.Generated.Format("2006-01-02 15:04:05")},
	}
	if view.Incomplete {
		meta = append(meta, [2]any{"Extraction incomplete:", view.IncompleteReason})
	}
	for _, kv := range meta {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), kv[0])
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), s.label)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), kv[1])
		row++
	}
	row++

	headerRow := row
	writeHeader(f, s, sheet, row, []string{"Role", "Label", "Share"})
	row++
	for _, role := range types.AllRoles() {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), string(role))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), role.Label())
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), view.Distribution.Get(role))
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), s.cell)
		f.SetCellStyle(sheet, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), s.percent)
		row++
	}
	return freezeBelow(f, sheet, headerRow)
}

func writeClustersSheet(f *excelize.File, s *styles, view *types.ClusterView) error {
	sheet := SheetClusters
	f.SetColWidth(sheet, "A", "A", 8)
	f.SetColWidth(sheet, "B", "B", 8)
	f.SetColWidth(sheet, "C", "C", 16)
	f.SetColWidth(sheet, "D", "D", 70)
	f.SetColWidth(sheet, "E", "E", 40)

	writeHeader(f, s, sheet, 1, []string{"Role", "Tier", "Ownership", "Evidence", "Chunks"})
	row := 2
	for _, group := range view.Clusters {
		for _, unit := range group.Items {
			tier := any(NotAvailable)
			if t := unit.BestTier(group.Role); t != types.TierNone {
				tier = int(t)
			}
			ownership := string(unit.Ownership)
			if ownership == "" {
				ownership = string(types.OwnershipPrimary)
			}
			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), string(group.Role))
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), tier)
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), ownership)
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), unit.Text)
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), strings.Join(unit.OriginatingChunkIDs, ", "))
			f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), s.wrap)
			row++
		}
	}

	if row > 2 {
		if err := f.AutoFilter(sheet, fmt.Sprintf("A1:E%d", row-1), []excelize.AutoFilterOptions{}); err != nil {
			return err
		}
	}
	return freezeBelow(f, sheet, 1)
}

func writeMatchSheet(f *excelize.File, s *styles, match *types.MatchResult) error {
	sheet := SheetMatch
	f.SetColWidth(sheet, "A", "A", 10)
	f.SetColWidth(sheet, "B", "B", 30)
	f.SetColWidth(sheet, "C", "D", 14)
	f.SetColWidth(sheet, "E", "E", 14)

	writeHeader(f, s, sheet, 1, []string{"Role", "Label", "Weight", "Match", "Evidence"})
	row := 2
	for _, cm := range match.PerCluster {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), string(cm.Role))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), cm.Label)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), cm.Weight)
		setPercent(f, s, sheet, fmt.Sprintf("D%d", row), cm.MatchPct)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), len(cm.Evidence))
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), s.cell)
		f.SetCellStyle(sheet, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), s.percent)
		f.SetCellStyle(sheet, fmt.Sprintf("E%d", row), fmt.Sprintf("E%d", row), s.cell)
		row++
	}
	row++

	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Overall")
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), s.label)
	setPercent(f, s, sheet, fmt.Sprintf("D%d", row), match.Overall)
	row++

	details := [][2]string{
		{"Job description", match.JDRef},
		{"Method", match.Debug.Method},
	}
	if match.Reason != "" {
		details = append(details, [2]string{"Reason", match.Reason})
	}
	for _, kv := range details {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), kv[0])
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), s.label)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), kv[1])
		row++
	}
	return freezeBelow(f, sheet, 1)
}

func setPercent(f *excelize.File, s *styles, sheet, cell string, v *float64) {
	if v == nil {
		f.SetCellValue(sheet, cell, NotAvailable)
		f.SetCellStyle(sheet, cell, cell, s.cell)
		return
	}
	f.SetCellValue(sheet, cell, *v)
	f.SetCellStyle(sheet, cell, cell, s.percent)
}
