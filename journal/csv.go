// journal/csv.go
package journal

import (
	"encoding/csv"
	"io"
	"os"
	"time"

	"github.com/rustyeddy/papertrade/ledger"
)

var csvHeader = []string{"id", "account_id", "symbol", "side", "price", "quantity", "total_value", "time"}

// CSVJournal writes transaction history as CSV with a header row.
type CSVJournal struct {
	w *csv.Writer
	f *os.File
}

// NewCSV creates (or truncates) path and writes the header.
func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	j := &CSVJournal{w: csv.NewWriter(f), f: f}
	if err := j.w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTransaction(t ledger.Transaction) error {
	return j.w.Write(csvRow(t))
}

func (j *CSVJournal) Close() error {
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}

// WriteCSV writes txs to w as CSV, header first.
func WriteCSV(w io.Writer, txs []ledger.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range txs {
		if err := cw.Write(csvRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(t ledger.Transaction) []string {
	return []string{
		t.ID,
		t.AccountID,
		t.Symbol,
		string(t.Side),
		t.Price.String(),
		t.Quantity.String(),
		t.TotalValue.String(),
		t.Time.UTC().Format(time.RFC3339),
	}
}
