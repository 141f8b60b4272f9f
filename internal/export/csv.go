package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CSVOptions configures CSV output
type CSVOptions struct {
	Delimiter       rune
	UseCRLF         bool
	TimestampFormat string
	NullValue       string
}

func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:       ',',
		TimestampFormat: time.RFC3339,
	}
}

// WriteCSV writes a header row of column labels followed by one record per row
func WriteCSV(w io.Writer, columns []Column, rows []map[string]interface{}, options CSVOptions) error {
	writer := csv.NewWriter(w)
	if options.Delimiter != 0 {
		writer.Comma = options.Delimiter
	}
	writer.UseCRLF = options.UseCRLF

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Label
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = formatCSVValue(row[col.Key], options)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatCSVValue(val interface{}, options CSVOptions) string {
	switch v := val.(type) {
	case nil:
		return options.NullValue
	case string:
		return v
	case decimal.Decimal:
		return v.StringFixed(2)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return options.NullValue
		}
		return v.Format(options.TimestampFormat)
	case *time.Time:
		if v == nil {
			return options.NullValue
		}
		return formatCSVValue(*v, options)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
