package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	labels := []string{"PASSAGENS.ID", "CLIENTE.NOME", "VEICULO.PLACA", "PASSAGENS.PESO_CHEGADA", "PASSAGENS.ENTRADA_TS"}
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	row1, err := NewRow(labels, []any{int64(1), "ACME Transportes", "ABC1D23", json.Number("12500.500"), ts})
	require.NoError(t, err)
	row2, err := NewRow(labels, []any{int64(2), "Granja Boa Vista", nil, json.Number("800"), ts})
	require.NoError(t, err)

	result := &Result{
		BaseEntity: "PASSAGENS",
		Columns:    labels,
		Count:      2,
		Items:      []Row{row1, row2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, result))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"PASSAGENS"}, f.GetSheetList())

	rows, err := f.GetRows("PASSAGENS")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, labels, rows[0])
	assert.Equal(t, []string{"1", "ACME Transportes", "ABC1D23", "12500.500"}, rows[1][:4])
	assert.Equal(t, []string{"2", "Granja Boa Vista", "", "800"}, rows[2][:4])

	whole, err := f.GetCellType("PASSAGENS", "D3")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeInlineString, whole)
	assert.NotEqual(t, excelize.CellTypeSharedString, whole)
}

func TestXLSXCell_DecimalsKeepExactText(t *testing.T) {
	assert.Equal(t, "0.001", xlsxCell(json.Number("0.001"), 0))
	assert.Equal(t, "99999999.999", xlsxCell(json.Number("99999999.999"), 0))
	assert.Equal(t, int64(800), xlsxCell(json.Number("800"), 0))
	assert.Nil(t, xlsxCell(nil, 0))
}

func TestWriteXLSX_EmptyReportHasHeaderOnly(t *testing.T) {
	result := &Result{BaseEntity: "CLIENTES", Columns: []string{"CLIENTES.NOME"}, Items: []Row{}}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, result))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("CLIENTES")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"CLIENTES.NOME"}}, rows)
}
