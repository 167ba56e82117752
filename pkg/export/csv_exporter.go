package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content. Rows are grouped into sections; a dataset with a
// single untitled section renders as a plain table.
type Dataset struct {
	Headers  []string
	Sections []Section
	// SectionColumn, when set, is prepended to every CSV row and holds the section title.
	SectionColumn string
}

// Section is one titled block of rows, e.g. one candidate schedule.
type Section struct {
	Title string
	Rows  []map[string]string
}

// RowCount returns the number of rows across every section.
func (d Dataset) RowCount() int {
	total := 0
	for _, s := range d.Sections {
		total += len(s.Rows)
	}
	return total
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	header := data.Headers
	if data.SectionColumn != "" {
		header = append([]string{data.SectionColumn}, data.Headers...)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, section := range data.Sections {
		for _, row := range section.Rows {
			record := make([]string, 0, len(header))
			if data.SectionColumn != "" {
				record = append(record, section.Title)
			}
			for _, h := range data.Headers {
				record = append(record, row[h])
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
