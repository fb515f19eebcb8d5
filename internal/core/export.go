package core

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

// ExportHeader is the column header of the inventory export.
var ExportHeader = []string{
	"Nome",
	"Qtd. Comprada",
	"Valor Compra (Unit)",
	"Valor Venda (Unit)",
	"Qtd. Vendida",
	"Estoque Atual",
	"Lucro Individual",
	"Lucro Total",
}

// ExportRow renders one record as the eight export fields.
func ExportRow(r InventoryRecord) []string {
	return []string{
		r.Name,
		strconv.FormatInt(r.QuantityPurchased, 10),
		r.PurchasePrice.String(),
		r.SalePrice.String(),
		strconv.FormatInt(r.QuantitySold, 10),
		strconv.FormatInt(r.CurrentStock(), 10),
		r.IndividualProfit().Fixed(),
		r.TotalProfit().Fixed(),
	}
}

// ExportRows returns the header followed by one row per record.
func ExportRows(records []InventoryRecord) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, ExportHeader)
	for _, r := range records {
		rows = append(rows, ExportRow(r))
	}
	return rows
}

// ToDelimitedText renders the export as comma-separated text, one line per
// row joined by "\n". Fields holding a comma, quote or line break are quoted.
func ToDelimitedText(records []InventoryRecord) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Writing to a bytes.Buffer cannot fail.
	_ = w.WriteAll(ExportRows(records))
	return strings.TrimSuffix(buf.String(), "\n")
}
