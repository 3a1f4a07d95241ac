// Instrument reference data, loaded once per market from a CSV export and
// queried in memory. Mass-cancel scoping (segment, underlying) and the
// instrument-specific hard rejects read from this table.

package instruments

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Instrument is one tradeable security.
type Instrument struct {
	Symbol         string
	ExchangeCode   string // the security ID used on orders
	SourceExchange string // market segment
	SecurityType   string
}

// Table is the in-memory instrument reference table.
type Table struct {
	instruments []Instrument
	byCode      map[string]Instrument
}

// NewTable builds a table from already-parsed instruments (used by tests and
// by markets configured inline).
func NewTable(ins []Instrument) *Table {
	t := &Table{instruments: ins, byCode: make(map[string]Instrument, len(ins))}
	for _, in := range ins {
		t.byCode[in.ExchangeCode] = in
	}
	return t
}

// LoadCSV reads an instrument file. The header row names the columns; only
// the known columns are read, the rest are ignored.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instrument file: %w", err)
	}
	defer f.Close()
	return parse(csv.NewReader(f))
}

func parse(r *csv.Reader) (*Table, error) {
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read instrument header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	pick := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var ins []Instrument
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read instrument row: %w", err)
		}
		ins = append(ins, Instrument{
			Symbol:         pick(rec, "symbol"),
			ExchangeCode:   pick(rec, "exchangecode"),
			SourceExchange: pick(rec, "sourceexchange"),
			SecurityType:   pick(rec, "securitytype"),
		})
	}
	return NewTable(ins), nil
}

// All returns every instrument in load order.
func (t *Table) All() []Instrument { return t.instruments }

// ByCode looks an instrument up by its exchange code.
func (t *Table) ByCode(code string) (Instrument, bool) {
	in, ok := t.byCode[code]
	return in, ok
}

// SegmentCodes returns the exchange codes of every instrument in a segment.
func (t *Table) SegmentCodes(segment string) []string {
	var codes []string
	for _, in := range t.instruments {
		if in.SourceExchange == segment {
			codes = append(codes, in.ExchangeCode)
		}
	}
	return codes
}

// UnderlyingCodes returns the exchange codes of every instrument whose symbol
// extends the given instrument's symbol (the derivative chain of an
// underlying), excluding the underlying itself.
func (t *Table) UnderlyingCodes(underlyingCode string) []string {
	base, ok := t.byCode[underlyingCode]
	if !ok {
		return nil
	}
	var codes []string
	for _, in := range t.instruments {
		if in.ExchangeCode != underlyingCode && strings.HasPrefix(in.Symbol, base.Symbol) {
			codes = append(codes, in.ExchangeCode)
		}
	}
	return codes
}
