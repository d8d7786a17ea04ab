package supervisor

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lattice-acs/acs/pkg/common"
)

// TenantDescriptor is one entry in the tenants.yaml bootstrap file: spec
// §4.8 says a supervisor starts exactly one worker "for each active
// tenantId" but leaves how tenants are declared unspecified
// (SPEC_FULL.md supplement).
type TenantDescriptor struct {
	TenantID string `yaml:"tenantId"`
	DSN      string `yaml:"dsn,omitempty"`
	Driver   string `yaml:"driver,omitempty"`
}

// TenantsFile is the top-level shape of tenants.yaml.
type TenantsFile struct {
	Tenants []TenantDescriptor `yaml:"tenants"`
}

// LoadTenants reads and parses a tenants.yaml bootstrap descriptor.
func LoadTenants(path string) ([]TenantDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.Wrap(common.KindPersistenceError, err, "reading tenants file "+path)
	}

	var f TenantsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, common.Wrap(common.KindInvalidArgument, err, "parsing tenants file "+path)
	}

	for i, t := range f.Tenants {
		if t.TenantID == "" {
			return nil, common.Newf(common.KindInvalidArgument, "tenants.yaml entry %d missing tenantId", i)
		}
	}
	return f.Tenants, nil
}
