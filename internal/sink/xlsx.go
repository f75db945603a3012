package sink

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// maxSheetName is the spreadsheet limit on sheet title length.
const maxSheetName = 31

// XLSX writes each destination to <Dir>/<name>.xlsx, one sheet per file.
type XLSX struct {
	Dir string
}

// Write implements Sink.
func (s *XLSX) Write(ctx context.Context, table Table, dest Destination) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "sink: xlsx")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName(dest))
	if err != nil {
		return eris.Wrap(err, "sink: xlsx add sheet")
	}

	addRow(sheet, table.Columns)
	for _, r := range table.Rows {
		addRow(sheet, r)
	}

	path, err := outputPath(s.Dir, dest.Name, string(FormatXLSX))
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "sink: save %s", path)
	}

	zap.L().Info("wrote xlsx",
		zap.String("path", path),
		zap.String("kind", string(dest.Kind)),
		zap.Int("rows", len(table.Rows)),
	)
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func sheetName(dest Destination) string {
	name := string(dest.Kind)
	if name == "" {
		name = dest.Name
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}
