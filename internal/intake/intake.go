// Package intake reads infrastructure inventories from CSV and XLSX files
// into geocoding queries.
package intake

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/textnorm"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// ErrNoNameColumn is returned when the header has no recognisable name column.
var ErrNoNameColumn = eris.New("intake: no name column in header")

// headerAliases maps folded header spellings to the query field they fill.
var headerAliases = map[string]string{
	"name":              "name",
	"nombre":            "name",
	"denominacion":      "name",
	"infraestructura":   "name",
	"municipality_code": "muni_code",
	"muni_code":         "muni_code",
	"cod_ine":           "muni_code",
	"codigo_ine":        "muni_code",
	"ine":               "muni_code",
	"codmun":            "muni_code",
	"municipality":      "muni",
	"municipio":         "muni",
	"localidad":         "muni",
	"address":           "address",
	"direccion":         "address",
	"domicilio":         "address",
	"category":          "category",
	"categoria":         "category",
	"tipo":              "category",
}

// Columns holds the index of each recognised column, -1 when absent.
type Columns struct {
	Name     int
	MuniCode int
	Muni     int
	Address  int
	Category int
}

// MapHeader locates the query columns in a header row.
func MapHeader(header []string) (Columns, error) {
	cols := Columns{Name: -1, MuniCode: -1, Muni: -1, Address: -1, Category: -1}
	for i, h := range header {
		key := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(textnorm.Fold(h))), "_")
		field, ok := headerAliases[key]
		if !ok {
			continue
		}
		var slot *int
		switch field {
		case "name":
			slot = &cols.Name
		case "muni_code":
			slot = &cols.MuniCode
		case "muni":
			slot = &cols.Muni
		case "address":
			slot = &cols.Address
		case "category":
			slot = &cols.Category
		}
		if *slot < 0 {
			*slot = i
		}
	}
	if cols.Name < 0 {
		return cols, ErrNoNameColumn
	}
	return cols, nil
}

// Query builds a query from a data row. Unknown category labels are left
// empty so the classifier decides.
func (c Columns) Query(row []string) geocode.Query {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	q := geocode.Query{
		Name:             cell(c.Name),
		MunicipalityCode: cell(c.MuniCode),
		MunicipalityName: cell(c.Muni),
		Address:          cell(c.Address),
	}
	if raw := cell(c.Category); raw != "" {
		if cat, err := geocode.ParseCategory(raw); err == nil {
			q.Category = cat
		} else {
			zap.L().Debug("intake: ignoring category", zap.String("value", raw))
		}
	}
	return q
}

// ParseRows converts a header row plus data rows into queries. Blank rows
// are dropped; rows with an empty name are kept so the caller reports them.
func ParseRows(rows [][]string) ([]geocode.Query, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols, err := MapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	queries := make([]geocode.Query, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		queries = append(queries, cols.Query(row))
	}
	return queries, nil
}

// ReadCSV reads an inventory from CSV.
func ReadCSV(ctx context.Context, r io.Reader) ([]geocode.Query, error) {
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{LazyQuotes: true})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return ParseRows(rows)
}

// ReadFile reads an inventory, choosing the parser by file extension.
func ReadFile(ctx context.Context, path string) ([]geocode.Query, error) {
	var (
		queries []geocode.Query
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		var rows [][]string
		rows, err = ReadXLSX(path, XLSXOptions{})
		if err == nil {
			queries, err = ParseRows(rows)
		}
	case ".csv", ".tsv", ".txt":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: open %s", path)
		}
		defer f.Close()
		queries, err = ReadCSV(ctx, f)
	default:
		return nil, eris.Errorf("intake: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "intake: read %s", path)
	}

	zap.L().Info("intake: read inventory",
		zap.String("path", path),
		zap.Int("rows", len(queries)),
	)
	return queries, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
