package tenant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// MemoryRoot keeps every tenant in its own in-memory database
const MemoryRoot = ":memory:"

// Provisioner decides where a tenant database lives and creates its directory
type Provisioner struct {
	Fs   afero.Fs
	Root string
}

func NewProvisioner(fs afero.Fs, root string) *Provisioner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Provisioner{Fs: fs, Root: root}
}

// InMemory reports whether tenants get in-memory databases
func (p *Provisioner) InMemory() bool {
	return p.Root == "" || p.Root == MemoryRoot
}

// Dir returns the per-tenant directory. The tenant id is hashed so it never
// ends up in a path verbatim.
func (p *Provisioner) Dir(tenantID string) string {
	sum := sha256.Sum256([]byte(tenantID))
	return filepath.Join(p.Root, "tenant_"+hex.EncodeToString(sum[:])[:16])
}

// Provision creates the tenant directory and returns the DuckDB dsn
func (p *Provisioner) Provision(tenantID string) (string, error) {
	if p.InMemory() {
		return "", nil
	}
	dir := p.Dir(tenantID)
	if err := p.Fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Join(dir, "data.duckdb"), nil
}
