package core

// InitResponse reports the outcome of an ingestion
type InitResponse struct {
	IsSuccess  bool   `json:"is_success"`
	Message    string `json:"message"`
	TableName  string `json:"table_name,omitempty"`
	TableInfo  string `json:"table_info,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// QueryRequest is a question about one table. Message is accepted as an
// alias of Question.
type QueryRequest struct {
	TableName string `json:"table_name"`
	Question  string `json:"question"`
	Message   string `json:"message,omitempty"`
}

// Text returns the question, falling back to Message
func (q QueryRequest) Text() string {
	if q.Question != "" {
		return q.Question
	}
	return q.Message
}

// QueryResponse is the answer to a question. Failures only carry Message.
type QueryResponse struct {
	IsSuccess   bool         `json:"is_success"`
	Message     string       `json:"message,omitempty"`
	Query       string       `json:"query,omitempty"`
	Explanation string       `json:"explanation,omitempty"`
	Result      *QueryResult `json:"result,omitempty"`
	Count       *int         `json:"count,omitempty"`
}

type TableListResponse struct {
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

type TableInfoResponse struct {
	TableName string `json:"table_name"`
	Info      string `json:"info"`
}
