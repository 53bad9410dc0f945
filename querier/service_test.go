package querier

import (
	"context"

	"github.com/gigapi/gigapi-chat/core"
)

// fakeService records the tenant of every call and answers from its fields
type fakeService struct {
	tenants []string
	token   string
	payload []byte

	initResp core.InitResponse
	askResp  core.QueryResponse
	tables   core.TableListResponse
	info     core.TableInfoResponse
	result   *core.QueryResult
	query    string
	err      error
}

var _ Service = (*fakeService)(nil)

func (f *fakeService) Initialize(_ context.Context, tenantID, accessToken, _, _ string) (core.InitResponse, error) {
	f.tenants = append(f.tenants, tenantID)
	f.token = accessToken
	return f.initResp, f.err
}

func (f *fakeService) Ingest(_ context.Context, tenantID, _, _ string, payload []byte) (core.InitResponse, error) {
	f.tenants = append(f.tenants, tenantID)
	f.payload = payload
	return f.initResp, f.err
}

func (f *fakeService) Ask(_ context.Context, tenantID, _, _ string) (core.QueryResponse, error) {
	f.tenants = append(f.tenants, tenantID)
	return f.askResp, f.err
}

func (f *fakeService) ListTables(_ context.Context, tenantID string) (core.TableListResponse, error) {
	f.tenants = append(f.tenants, tenantID)
	return f.tables, f.err
}

func (f *fakeService) TableInfo(_ context.Context, tenantID, _ string) (core.TableInfoResponse, error) {
	f.tenants = append(f.tenants, tenantID)
	return f.info, f.err
}

func (f *fakeService) Execute(_ context.Context, tenantID, query string) (*core.QueryResult, error) {
	f.tenants = append(f.tenants, tenantID)
	f.query = query
	return f.result, f.err
}
