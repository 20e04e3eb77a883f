// Package decompose splits a batch payload into the record payloads tracked
// through data entry and processing. Each supported data type has its own
// splitting rule: delimited text yields one record per row, spreadsheets one
// record per data row, scanned documents one record per page group, and hagy
// case files a single record.
package decompose

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/graphium/importsvc/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyPayload is returned when a batch has nothing to split.
var ErrEmptyPayload = errors.New("batch payload is empty")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Seed is one record payload produced by splitting a batch.
type Seed struct {
	DataType domain.BatchDataType
	Payload  json.RawMessage
}

// Split decomposes the batch payload into record seeds according to the
// batch's data type and parse options.
func Split(batch domain.ImportBatch) ([]Seed, error) {
	if len(batch.Payload) == 0 {
		return nil, ErrEmptyPayload
	}

	switch batch.DataType {
	case domain.BatchDataTypeDSV:
		return splitDSV(batch)
	case domain.BatchDataTypeXLSX:
		return splitXLSX(batch)
	case domain.BatchDataTypePDF:
		return splitPDF(batch)
	case domain.BatchDataTypeHagy:
		return splitHagy(batch)
	default:
		return nil, fmt.Errorf("unsupported batch data type %q", batch.DataType)
	}
}

// dsvRecordPayload is the stored shape of a delimited-row record.
type dsvRecordPayload struct {
	RowNumber int               `json:"rowNumber"`
	Values    []string          `json:"values,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func splitDSV(batch domain.ImportBatch) ([]Seed, error) {
	opts := domain.DSVParseOptions{}
	if batch.ParseOptions.DSV != nil {
		opts = *batch.ParseOptions.DSV
	}

	data := bytes.TrimPrefix(batch.Payload, byteOrderMark)
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if opts.Delimiter != "" {
		reader.Comma = []rune(opts.Delimiter)[0]
	}

	for skipped := 0; skipped < opts.SkipRows; skipped++ {
		if _, err := reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrEmptyPayload
			}
			return nil, fmt.Errorf("failed to skip row %d: %w", skipped+1, err)
		}
	}

	var header []string
	if opts.HasHeader {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrEmptyPayload
			}
			return nil, fmt.Errorf("failed to read header row: %w", err)
		}
		header = row
	}

	var seeds []Seed
	rowNumber := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowNumber+1, err)
		}
		rowNumber++

		seed, err := rowSeed(row, header, rowNumber)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}

	if len(seeds) == 0 {
		return nil, ErrEmptyPayload
	}
	return seeds, nil
}

func splitXLSX(batch domain.ImportBatch) ([]Seed, error) {
	book, err := excelize.OpenReader(bytes.NewReader(batch.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyPayload
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	// First non-empty row is the header, the rest are records.
	var header []string
	var seeds []Seed
	rowNumber := 0
	for _, row := range rows {
		if emptyRow(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		rowNumber++
		seed, err := rowSeed(row, header, rowNumber)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}

	if len(seeds) == 0 {
		return nil, ErrEmptyPayload
	}
	return seeds, nil
}

func rowSeed(row, header []string, rowNumber int) (Seed, error) {
	payload := dsvRecordPayload{RowNumber: rowNumber}
	if header != nil {
		payload.Fields = make(map[string]string, len(header))
		for i, name := range header {
			name = strings.TrimSpace(name)
			if name == "" || i >= len(row) {
				continue
			}
			payload.Fields[name] = row[i]
		}
	} else {
		payload.Values = row
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to marshal row %d: %w", rowNumber, err)
	}
	return Seed{DataType: domain.BatchDataTypeDSV, Payload: raw}, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// pdfBatchPayload is the stored shape of a scanned-document batch payload:
// a reference to the stored document plus its page count.
type pdfBatchPayload struct {
	FileRef   string `json:"fileRef"`
	PageCount int    `json:"pageCount"`
}

// PDFRecordPayload is the stored shape of a scanned-document record: a page
// group within the batch document. Page numbers are 1-based.
type PDFRecordPayload struct {
	FileRef string `json:"fileRef"`
	Pages   []int  `json:"pages"`
}

func splitPDF(batch domain.ImportBatch) ([]Seed, error) {
	var payload pdfBatchPayload
	if err := json.Unmarshal(batch.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse pdf batch payload: %w", err)
	}
	if payload.PageCount <= 0 {
		return nil, ErrEmptyPayload
	}

	pagesPerRecord := 1
	if batch.ParseOptions.PDF != nil && batch.ParseOptions.PDF.PagesPerRecord > 0 {
		pagesPerRecord = batch.ParseOptions.PDF.PagesPerRecord
	}

	var seeds []Seed
	for start := 1; start <= payload.PageCount; start += pagesPerRecord {
		group := PDFRecordPayload{FileRef: payload.FileRef}
		for page := start; page < start+pagesPerRecord && page <= payload.PageCount; page++ {
			group.Pages = append(group.Pages, page)
		}
		raw, err := json.Marshal(group)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal page group: %w", err)
		}
		seeds = append(seeds, Seed{DataType: domain.BatchDataTypePDF, Payload: raw})
	}
	return seeds, nil
}

// splitHagy keeps a hagy case file whole: the entire payload becomes one
// record and its structure is left to the downstream flow engine.
func splitHagy(batch domain.ImportBatch) ([]Seed, error) {
	raw, err := json.Marshal(map[string]string{"content": string(batch.Payload)})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap hagy payload: %w", err)
	}
	return []Seed{{DataType: domain.BatchDataTypeHagy, Payload: raw}}, nil
}

// Combine synthesizes a single record payload out of several, used when
// records are merged. PDF page groups are concatenated in the order given;
// every other data type nests the source payloads in a merged list.
func Combine(dataType domain.BatchDataType, payloads []json.RawMessage) (json.RawMessage, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyPayload
	}

	if dataType == domain.BatchDataTypePDF {
		var combined PDFRecordPayload
		for i, raw := range payloads {
			var group PDFRecordPayload
			if err := json.Unmarshal(raw, &group); err != nil {
				return nil, fmt.Errorf("failed to parse pdf record payload %d: %w", i, err)
			}
			if combined.FileRef == "" {
				combined.FileRef = group.FileRef
			}
			combined.Pages = append(combined.Pages, group.Pages...)
		}
		return json.Marshal(combined)
	}

	merged := make([]json.RawMessage, len(payloads))
	copy(merged, payloads)
	return json.Marshal(map[string]any{"merged": merged})
}
