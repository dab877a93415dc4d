/*
Package importer reads the yield history spreadsheet export (CSV) and turns
it into unassigned yield records.

FILE LAYOUT:
  The export is meant for humans: title rows, a header row, month banners
  ("JANEIRO", "FEVEREIRO"...) and blank lines are mixed with data rows.
  A data row is any row with a dd/mm/yyyy cell; the cells after it are

    date, weekday, percentage, variation, amount

  Numbers use the Brazilian format: "1.234,56", "R$ 1.234,56", "0,85%".

SKIPPING:
  Rows without a date cell are not data and are ignored silently. Rows with
  a date but no readable number are counted in Result.Skipped.
*/
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/payout"
)

var brDate = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)

// Row is one data row of the export. A value missing in the file is zero.
type Row struct {
	Line       int
	Date       calendar.Date
	Percentage decimal.Decimal
	Variation  decimal.Decimal
	Amount     decimal.Decimal
}

// Result is what Parse found.
type Result struct {
	Rows    []Row
	Skipped int
}

// Parse reads the export. It only fails when the input is not readable CSV.
func Parse(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var result Result
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)

		dateIdx := -1
		for i, cell := range cells {
			if brDate.MatchString(cell) {
				dateIdx = i
				break
			}
		}
		if dateIdx == -1 {
			continue
		}

		date, err := calendar.ParseBR(brDate.FindString(cells[dateIdx]))
		if err != nil {
			result.Skipped++
			continue
		}

		pct, okPct := parseNumber(cell(cells, dateIdx+2))
		vari, okVar := parseNumber(cell(cells, dateIdx+3))
		amt, okAmt := parseNumber(cell(cells, dateIdx+4))
		if !okPct && !okVar && !okAmt {
			result.Skipped++
			continue
		}

		result.Rows = append(result.Rows, Row{
			Line:       line,
			Date:       date,
			Percentage: pct,
			Variation:  vari,
			Amount:     amt,
		})
	}
	return result, nil
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// parseNumber reads "R$ 1.234,56", "-0,85%" and the like.
func parseNumber(raw string) (decimal.Decimal, bool) {
	s := strings.NewReplacer("R$", "", "%", "", " ", "", "\u00a0", "", `"`, "").Replace(raw)
	if s == "" || s == "-" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// =============================================================================
// IMPORT - Parse + insert through the yield book
// =============================================================================

// Summary reports an import.
type Summary struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Import parses r and inserts every row as an unassigned record of clientID.
// Dates the client already has are counted as duplicates and left alone.
func Import(ctx context.Context, book payout.YieldBook, clientID payout.ClientID, r io.Reader) (Summary, error) {
	parsed, err := Parse(r)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", payout.ErrInvalidInput, err)
	}

	summary := Summary{Skipped: parsed.Skipped}
	for _, row := range parsed.Rows {
		err := book.CreateRecord(ctx, payout.YieldRecord{
			ID:         payout.RecordID(uuid.NewString()),
			ClientID:   clientID,
			Date:       row.Date,
			Percentage: row.Percentage,
			Variation:  row.Variation,
			Amount:     row.Amount,
		})
		switch {
		case err == nil:
			summary.Inserted++
		case errors.Is(err, payout.ErrDuplicateRecord):
			summary.Duplicates++
		default:
			return summary, fmt.Errorf("line %d: %w", row.Line, err)
		}
	}
	return summary, nil
}
