package report

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fleet-reports/internal/dbexec"
	"fleet-reports/internal/planner"
	"fleet-reports/internal/schema"
	"fleet-reports/internal/sqlutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg, err := schema.Default()
	require.NoError(t, err)

	svc := NewService(Config{
		Registry: reg,
		Dialect:  sqlutil.DialectMySQL,
		Executor: dbexec.NewPoolExecutor(db, 0),
	})
	return svc, mock
}

func planFor(t *testing.T, svc *Service, base string, paths []string) *planner.ReportPlan {
	t.Helper()
	plan, err := svc.Plan(context.Background(), base, paths)
	require.NoError(t, err)
	return plan
}

func TestRun_MultiHopReport(t *testing.T) {
	svc, mock := newTestService(t)
	paths := []string{"ID", "CLIENTE.NOME", "VEICULO.PLACA", "VEICULO.MOTORISTA.NOME", "PESO_CHEGADA", "ENTRADA_TS"}
	plan := planFor(t, svc, "PASSAGENS", paths)

	entrada := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(plan.Query.SQL).WillReturnRows(
		sqlmock.NewRows(plan.Labels()).
			AddRow(int64(1), "ACME Transportes", "ABC1D23", "Joao Silva", "12500.50", entrada).
			AddRow(int64(2), "ACME Transportes", nil, nil, "800.00", entrada.Add(time.Hour)),
	)

	result, err := svc.Run(context.Background(), "passagens", paths)
	require.NoError(t, err)

	assert.Equal(t, "PASSAGENS", result.BaseEntity)
	assert.Equal(t, []string{
		"PASSAGENS.ID", "CLIENTE.NOME", "VEICULO.PLACA", "VEICULO.MOTORISTA.NOME",
		"PASSAGENS.PESO_CHEGADA", "PASSAGENS.ENTRADA_TS",
	}, result.Columns)
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Items, 2)

	first := result.Items[0]
	id, ok := first.Get("PASSAGENS.ID")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	peso, _ := first.Get("PASSAGENS.PESO_CHEGADA")
	assert.Equal(t, json.Number("12500.50"), peso)
	ts, _ := first.Get("PASSAGENS.ENTRADA_TS")
	assert.Equal(t, entrada, ts)

	second := result.Items[1]
	placa, ok := second.Get("VEICULO.PLACA")
	require.True(t, ok)
	assert.Nil(t, placa)

	payload, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"tabela_base": "PASSAGENS",
		"colunas": ["PASSAGENS.ID", "CLIENTE.NOME", "VEICULO.PLACA", "VEICULO.MOTORISTA.NOME", "PASSAGENS.PESO_CHEGADA", "PASSAGENS.ENTRADA_TS"],
		"count": 2,
		"items": [
			{"PASSAGENS.ID": 1, "CLIENTE.NOME": "ACME Transportes", "VEICULO.PLACA": "ABC1D23", "VEICULO.MOTORISTA.NOME": "Joao Silva", "PASSAGENS.PESO_CHEGADA": 12500.50, "PASSAGENS.ENTRADA_TS": "2024-03-01T10:00:00Z"},
			{"PASSAGENS.ID": 2, "CLIENTE.NOME": "ACME Transportes", "VEICULO.PLACA": null, "VEICULO.MOTORISTA.NOME": null, "PASSAGENS.PESO_CHEGADA": 800.00, "PASSAGENS.ENTRADA_TS": "2024-03-01T11:00:00Z"}
		]
	}`, string(payload))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_EmptyResultEncodesEmptyItems(t *testing.T) {
	svc, mock := newTestService(t)
	plan := planFor(t, svc, "CLIENTES", []string{"NOME"})

	mock.ExpectQuery(plan.Query.SQL).WillReturnRows(sqlmock.NewRows(plan.Labels()))

	result, err := svc.Run(context.Background(), "CLIENTES", []string{"NOME"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)

	payload, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabela_base":"CLIENTES","colunas":["CLIENTES.NOME"],"count":0,"items":[]}`, string(payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_CapsRows(t *testing.T) {
	svc, mock := newTestService(t)
	plan := planFor(t, svc, "MOTORISTAS", []string{"ID"})

	rows := sqlmock.NewRows(plan.Labels())
	for i := 0; i < planner.MaxRows+5; i++ {
		rows.AddRow(int64(i + 1))
	}
	mock.ExpectQuery(plan.Query.SQL).WillReturnRows(rows)

	result, err := svc.Run(context.Background(), "MOTORISTAS", []string{"ID"})
	require.NoError(t, err)
	assert.Equal(t, planner.MaxRows, result.Count)
	assert.Len(t, result.Items, planner.MaxRows)
}

func TestRun_RepeatedPathKeepsDuplicateKeys(t *testing.T) {
	svc, mock := newTestService(t)
	paths := []string{"CLIENTE.NOME", "cliente.nome"}
	plan := planFor(t, svc, "PASSAGENS", paths)

	mock.ExpectQuery(plan.Query.SQL).WillReturnRows(
		sqlmock.NewRows(plan.Labels()).AddRow("ACME", "ACME"),
	)

	result, err := svc.Run(context.Background(), "PASSAGENS", paths)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	payload, err := json.Marshal(result.Items[0])
	require.NoError(t, err)
	assert.Equal(t, `{"CLIENTE.NOME":"ACME","CLIENTE.NOME":"ACME"}`, string(payload))
}

func TestRun_PlanningErrorsSkipDatabase(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.Run(context.Background(), "CLIENTES", []string{"FOO"})
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrUnknownColumn)
	assert.True(t, planner.IsPlanningError(err))
	assert.False(t, errors.Is(err, ErrExecution))

	_, err = svc.Run(context.Background(), "USUARIOS", []string{"ID"})
	assert.ErrorIs(t, err, planner.ErrUnknownEntity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ExecutionFailures(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		svc, mock := newTestService(t)
		plan := planFor(t, svc, "VEICULOS", []string{"PLACA"})
		mock.ExpectQuery(plan.Query.SQL).WillReturnError(driver.ErrBadConn)

		_, err := svc.Run(context.Background(), "VEICULOS", []string{"PLACA"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExecution)
		assert.False(t, planner.IsPlanningError(err))

		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "query", execErr.Stage)
	})

	t.Run("scan error", func(t *testing.T) {
		svc, mock := newTestService(t)
		plan := planFor(t, svc, "VEICULOS", []string{"ID"})
		mock.ExpectQuery(plan.Query.SQL).WillReturnRows(
			sqlmock.NewRows(plan.Labels()).AddRow("not-a-number"),
		)

		_, err := svc.Run(context.Background(), "VEICULOS", []string{"ID"})
		require.Error(t, err)
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "scan", execErr.Stage)
	})

	t.Run("iteration error", func(t *testing.T) {
		svc, mock := newTestService(t)
		plan := planFor(t, svc, "VEICULOS", []string{"ID"})
		mock.ExpectQuery(plan.Query.SQL).WillReturnRows(
			sqlmock.NewRows(plan.Labels()).AddRow(int64(1)).RowError(0, errors.New("connection reset")),
		)

		_, err := svc.Run(context.Background(), "VEICULOS", []string{"ID"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExecution)
	})

	t.Run("no executor", func(t *testing.T) {
		reg, err := schema.Default()
		require.NoError(t, err)
		svc := NewService(Config{Registry: reg, Dialect: sqlutil.DialectMySQL})

		_, err = svc.Run(context.Background(), "VEICULOS", []string{"ID"})
		assert.ErrorIs(t, err, ErrExecution)
	})
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", errorKind(nil))
	assert.Equal(t, "invalid_path", errorKind(&planner.PathError{Kind: planner.ErrInvalidPath}))
	assert.Equal(t, "no_columns", errorKind(&planner.PathError{Kind: planner.ErrNoColumns}))
	assert.Equal(t, "execution", errorKind(&ExecutionError{Stage: "query", Err: driver.ErrBadConn}))
}

func TestListClients(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT `ID`, `CNPJ`, `NOME`, `EMAIL` FROM `CLIENTES` ORDER BY `ID`").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "CNPJ", "NOME", "EMAIL"}).
			AddRow(int64(1), "12345678000190", "ACME Transportes", "contato@acme.com.br").
			AddRow(int64(2), "98765432000110", "Granja Boa Vista", nil))

	list, err := svc.ListClients(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, list.Total)
	assert.Equal(t, ClientSummary{ID: 1, CNPJ: "12345678000190", Nome: "ACME Transportes", Email: "contato@acme.com.br"}, list.Items[0])
	assert.Equal(t, "", list.Items[1].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClients_QueryError(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("SELECT `ID`, `CNPJ`, `NOME`, `EMAIL` FROM `CLIENTES` ORDER BY `ID`").
		WillReturnError(driver.ErrBadConn)

	_, err := svc.ListClients(context.Background())
	assert.ErrorIs(t, err, ErrExecution)
}
