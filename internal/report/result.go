package report

// Result is the payload returned for a report request.
type Result struct {
	// BaseEntity is the canonical name of the entity the report is rooted at.
	BaseEntity string `json:"tabela_base"`
	// Columns holds the output labels in request order.
	Columns []string `json:"colunas"`
	Count   int      `json:"count"`
	Items   []Row    `json:"items"`
}

// ClientSummary is one entry of the client listing.
type ClientSummary struct {
	ID    int64  `json:"id"`
	CNPJ  string `json:"cnpj"`
	Nome  string `json:"nome"`
	Email string `json:"email"`
}

// ClientList is the payload returned by the client listing.
type ClientList struct {
	Total int             `json:"total"`
	Items []ClientSummary `json:"items"`
}
