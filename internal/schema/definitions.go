package schema

func defaultTables() []Table {
	return []Table{
		{
			Entity: Clientes,
			Columns: []Column{
				{Name: "ID", Type: TypeInteger},
				{Name: "CNPJ", Type: TypeString},
				{Name: "NOME", Type: TypeString},
				{Name: "TELEFONE", Type: TypeString, Nullable: true},
				{Name: "EMAIL", Type: TypeString},
				{Name: "INSCRICAO_ESTADUAL", Type: TypeString, Nullable: true},
				{Name: "UF", Type: TypeString, Nullable: true},
				{Name: "CIDADE", Type: TypeString, Nullable: true},
				{Name: "ENDERECO", Type: TypeString, Nullable: true},
				{Name: "CRIADO_EM", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Entity: Veiculos,
			Columns: []Column{
				{Name: "ID", Type: TypeInteger},
				{Name: "PLACA", Type: TypeString},
				{Name: "MARCA", Type: TypeString},
				{Name: "MODELO", Type: TypeString},
				{Name: "MOTORISTA_ID", Type: TypeInteger, Nullable: true},
				{Name: "CRIADO_EM", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Entity: Motoristas,
			Columns: []Column{
				{Name: "ID", Type: TypeInteger},
				{Name: "NOME", Type: TypeString},
				{Name: "CPF", Type: TypeString},
				{Name: "TELEFONE", Type: TypeString, Nullable: true},
				{Name: "CRIADO_EM", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Entity: Passagens,
			Columns: []Column{
				{Name: "ID", Type: TypeInteger},
				{Name: "VEICULO_ID", Type: TypeInteger, Nullable: true},
				{Name: "PLACA_LIVRE", Type: TypeString, Nullable: true},
				{Name: "CLIENTE_ID", Type: TypeInteger},
				{Name: "PESO_CHEGADA", Type: TypeDecimal},
				{Name: "PESO_SAIDA", Type: TypeDecimal},
				// Generated by the database from PESO_CHEGADA - PESO_SAIDA.
				{Name: "PESO_LIQUIDO", Type: TypeDecimal, Nullable: true},
				{Name: "ENTRADA_TS", Type: TypeTimestamp},
				{Name: "SAIDA_TS", Type: TypeTimestamp, Nullable: true},
				{Name: "OBSERVACAO", Type: TypeString, Nullable: true},
				{Name: "CRIADO_EM", Type: TypeTimestamp, Nullable: true},
			},
		},
	}
}

func defaultJoinRules() []JoinRule {
	return []JoinRule{
		{From: Veiculos, To: Motoristas, Kind: JoinLeftOuter, FromColumn: "MOTORISTA_ID", ToColumn: "ID"},
		{From: Passagens, To: Clientes, Kind: JoinInner, FromColumn: "CLIENTE_ID", ToColumn: "ID"},
		{From: Passagens, To: Veiculos, Kind: JoinLeftOuter, FromColumn: "VEICULO_ID", ToColumn: "ID"},
	}
}

func defaultAliases() []Alias {
	return []Alias{
		{From: Passagens, Name: "CLIENTE", To: Clientes},
		{From: Passagens, Name: "CLIENTES", To: Clientes},
		{From: Passagens, Name: "VEICULO", To: Veiculos},
		{From: Passagens, Name: "VEICULOS", To: Veiculos},
		{From: Veiculos, Name: "MOTORISTA", To: Motoristas},
		{From: Veiculos, Name: "MOTORISTAS", To: Motoristas},
	}
}
