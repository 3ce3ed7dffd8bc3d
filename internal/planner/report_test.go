package planner

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"fleet-reports/internal/schema"
	"fleet-reports/internal/sqlutil"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Default()
	require.NoError(t, err)
	return reg
}

var boundLimitPattern = regexp.MustCompile(`LIMIT (\?|\$\d+)$`)

// goldenSQL renders a query with the row cap inlined so golden files do not
// depend on whether squirrel binds LIMIT as an argument.
func goldenSQL(t *testing.T, q SQLQuery) []byte {
	t.Helper()
	sql := q.SQL
	if boundLimitPattern.MatchString(sql) {
		require.Len(t, q.Args, 1)
		sql = boundLimitPattern.ReplaceAllString(sql, fmt.Sprintf("LIMIT %v", q.Args[0]))
	} else {
		require.Empty(t, q.Args)
	}
	return []byte(sql + "\n")
}

func TestPlanReport_Golden(t *testing.T) {
	reg := defaultRegistry(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name    string
		dialect sqlutil.Dialect
		base    string
		paths   []string
	}{
		{
			name:    "passagens_multi_hop_mysql",
			dialect: sqlutil.DialectMySQL,
			base:    "PASSAGENS",
			paths:   []string{"ID", "CLIENTE.NOME", "VEICULO.PLACA", "VEICULO.MOTORISTA.NOME"},
		},
		{
			name:    "passagens_multi_hop_postgres",
			dialect: sqlutil.DialectPostgres,
			base:    "PASSAGENS",
			paths:   []string{"ID", "CLIENTE.NOME", "VEICULO.PLACA", "VEICULO.MOTORISTA.NOME"},
		},
		{
			name:    "veiculos_lowercase_mysql",
			dialect: sqlutil.DialectMySQL,
			base:    "veiculos",
			paths:   []string{"placa", "motorista.nome"},
		},
		{
			name:    "clientes_no_joins_mysql",
			dialect: sqlutil.DialectMySQL,
			base:    "CLIENTES",
			paths:   []string{"CNPJ", "NOME", "EMAIL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanReport(reg, tt.dialect, tt.base, tt.paths)
			require.NoError(t, err)
			g.Assert(t, tt.name, goldenSQL(t, plan.Query))
		})
	}
}

func TestPlanReport_MultiHopExample(t *testing.T) {
	reg := defaultRegistry(t)

	plan, err := PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS",
		[]string{"ID", "CLIENTE.NOME", "VEICULO.PLACA", "VEICULO.MOTORISTA.NOME"})
	require.NoError(t, err)

	assert.Equal(t, schema.Passagens, plan.Base)
	assert.Equal(t, []string{"PASSAGENS.ID", "CLIENTE.NOME", "VEICULO.PLACA", "VEICULO.MOTORISTA.NOME"}, plan.Labels())

	require.Len(t, plan.Joins, 3)
	assert.Equal(t, schema.Pair{From: schema.Passagens, To: schema.Clientes}, plan.Joins[0].Pair())
	assert.Equal(t, schema.JoinInner, plan.Joins[0].Kind)
	assert.Equal(t, schema.Pair{From: schema.Passagens, To: schema.Veiculos}, plan.Joins[1].Pair())
	assert.Equal(t, schema.JoinLeftOuter, plan.Joins[1].Kind)
	assert.Equal(t, schema.Pair{From: schema.Veiculos, To: schema.Motoristas}, plan.Joins[2].Pair())
	assert.Equal(t, schema.JoinLeftOuter, plan.Joins[2].Kind)

	assert.Equal(t, schema.Motoristas, plan.Projections[3].Entity)
	assert.Equal(t, "NOME", plan.Projections[3].Column.Name)
}

func TestPlanReport_LowercaseAndWhitespace(t *testing.T) {
	reg := defaultRegistry(t)

	plan, err := PlanReport(reg, sqlutil.DialectMySQL, "VEICULOS", []string{"placa", " motorista . nome "})
	require.NoError(t, err)

	assert.Equal(t, []string{"VEICULOS.PLACA", "MOTORISTA.NOME"}, plan.Labels())
	require.Len(t, plan.Joins, 1)
	assert.Equal(t, schema.Pair{From: schema.Veiculos, To: schema.Motoristas}, plan.Joins[0].Pair())
}

func TestPlanReport_JoinOrderFollowsFirstNeed(t *testing.T) {
	reg := defaultRegistry(t)

	plan, err := PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS",
		[]string{"VEICULO.MOTORISTA.NOME", "CLIENTE.NOME", "VEICULO.PLACA"})
	require.NoError(t, err)

	require.Len(t, plan.Joins, 3)
	assert.Equal(t, schema.Veiculos, plan.Joins[0].To)
	assert.Equal(t, schema.Motoristas, plan.Joins[1].To)
	assert.Equal(t, schema.Clientes, plan.Joins[2].To)
}

func TestPlanReport_AliasesShareOneJoin(t *testing.T) {
	reg := defaultRegistry(t)

	plan, err := PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS",
		[]string{"CLIENTE.NOME", "CLIENTES.CNPJ", "cliente.email"})
	require.NoError(t, err)

	require.Len(t, plan.Joins, 1)
	assert.Equal(t, []string{"CLIENTE.NOME", "CLIENTES.CNPJ", "CLIENTE.EMAIL"}, plan.Labels())
}

func TestPlanReport_RepeatedPathKeepsBothEntries(t *testing.T) {
	reg := defaultRegistry(t)

	plan, err := PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS", []string{"CLIENTE.NOME", "cliente.nome"})
	require.NoError(t, err)

	assert.Equal(t, []string{"CLIENTE.NOME", "CLIENTE.NOME"}, plan.Labels())
	assert.Len(t, plan.Joins, 1)
}

func TestPlanReport_Idempotent(t *testing.T) {
	reg := defaultRegistry(t)
	paths := []string{"ID", "VEICULO.MOTORISTA.NOME", "CLIENTE.NOME"}

	first, err := PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS", paths)
	require.NoError(t, err)
	second, err := PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS", paths)
	require.NoError(t, err)

	assert.Equal(t, first.Query, second.Query)
	assert.Equal(t, first.Joins, second.Joins)
}

func TestPlanReport_Errors(t *testing.T) {
	reg := defaultRegistry(t)

	tests := []struct {
		name    string
		base    string
		paths   []string
		kind    error
		message string
	}{
		{
			name:    "unknown base entity",
			base:    "USUARIOS",
			paths:   []string{"ID"},
			kind:    ErrUnknownEntity,
			message: "table not allowed: USUARIOS",
		},
		{
			name:    "no columns",
			base:    "PASSAGENS",
			paths:   nil,
			kind:    ErrNoColumns,
			message: "at least one column is required",
		},
		{
			name:    "empty path",
			base:    "PASSAGENS",
			paths:   []string{"ID", " . . "},
			kind:    ErrEmptyPath,
			message: `empty or invalid column " . . "`,
		},
		{
			name:    "hop from entity without relationships",
			base:    "MOTORISTAS",
			paths:   []string{"VEICULO.PLACA"},
			kind:    ErrInvalidPath,
			message: "invalid path: no relationship from MOTORISTAS to VEICULO",
		},
		{
			name:    "unknown hop lists the relationships on offer",
			base:    "VEICULOS",
			paths:   []string{"CLIENTE.NOME"},
			kind:    ErrInvalidPath,
			message: "invalid path: no relationship from VEICULOS to CLIENTE (valid: MOTORISTA, MOTORISTAS)",
		},
		{
			name:    "unknown column on base",
			base:    "CLIENTES",
			paths:   []string{"FOO"},
			kind:    ErrUnknownColumn,
			message: "invalid column: CLIENTES.FOO",
		},
		{
			name:    "unknown column after hop",
			base:    "PASSAGENS",
			paths:   []string{"VEICULO.MOTORISTA.SALARIO"},
			kind:    ErrUnknownColumn,
			message: "invalid column: MOTORISTAS.SALARIO",
		},
		{
			name:    "relationship used as column",
			base:    "PASSAGENS",
			paths:   []string{"VEICULO"},
			kind:    ErrUnknownColumn,
			message: "invalid column: PASSAGENS.VEICULO",
		},
		{
			name:    "failing path aborts valid ones",
			base:    "PASSAGENS",
			paths:   []string{"ID", "CLIENTE.NOME", "CLIENTE.MOTORISTA.NOME"},
			kind:    ErrInvalidPath,
			message: "invalid path: no relationship from CLIENTES to MOTORISTA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanReport(reg, sqlutil.DialectMySQL, tt.base, tt.paths)
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.True(t, errors.Is(err, tt.kind), "expected %v, got %v", tt.kind, err)
			assert.True(t, IsPlanningError(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestPlanReport_RejectsLabelBoundToTwoColumns(t *testing.T) {
	tables := []schema.Table{
		{Entity: schema.Clientes, Columns: []schema.Column{{Name: "ID", Type: schema.TypeInteger}}},
		{Entity: schema.Veiculos, Columns: []schema.Column{{Name: "ID", Type: schema.TypeInteger}}},
		{Entity: schema.Motoristas, Columns: []schema.Column{{Name: "ID", Type: schema.TypeInteger}}},
		{Entity: schema.Passagens, Columns: []schema.Column{
			{Name: "ID", Type: schema.TypeInteger},
			{Name: "CLIENTE_ID", Type: schema.TypeInteger},
		}},
	}
	rules := []schema.JoinRule{
		{From: schema.Passagens, To: schema.Clientes, Kind: schema.JoinInner, FromColumn: "CLIENTE_ID", ToColumn: "ID"},
	}
	aliases := []schema.Alias{{From: schema.Passagens, Name: "PASSAGENS", To: schema.Clientes}}
	reg, err := schema.NewRegistry(tables, rules, aliases)
	require.NoError(t, err)

	_, err = PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS", []string{"ID", "PASSAGENS.ID"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPath)

	var pathErr *PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "PASSAGENS.ID", pathErr.Path)
}

func TestPlanReport_RowCap(t *testing.T) {
	reg := defaultRegistry(t)

	plan, err := PlanReport(reg, sqlutil.DialectMySQL, "PASSAGENS", []string{"ID"})
	require.NoError(t, err)

	if boundLimitPattern.MatchString(plan.Query.SQL) {
		assert.Equal(t, []interface{}{uint64(MaxRows)}, plan.Query.Args)
	} else {
		assert.Contains(t, plan.Query.SQL, fmt.Sprintf("LIMIT %d", MaxRows))
	}
}
