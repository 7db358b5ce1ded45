package rbac

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/arena/pkg/apperrors"
	"github.com/platinummonkey/arena/pkg/observability"
)

// SeedData is the permission catalog and the system roles built on it.
//
//	permissions:
//	  - code: events.manage
//	    name: Manage events
//	    module: events
//	roles:
//	  - name: Organizer
//	    permissions: [events.view, events.manage]
type SeedData struct {
	Permissions []Permission `yaml:"permissions"`
	Roles       []SystemRole `yaml:"roles"`
}

// DefaultSeed returns the built-in catalog and system roles
func DefaultSeed() *SeedData {
	return &SeedData{
		Permissions: Catalog(),
		Roles:       SystemRoles(),
	}
}

// ParseSeed decodes a YAML seed document, rejecting unknown keys
func ParseSeed(raw []byte) (*SeedData, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var data SeedData
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// LoadSeedFile reads and parses a YAML seed file
func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// Validate checks that every code is well formed and that roles only
// reference permissions declared in the same document.
func (d *SeedData) Validate() error {
	declared := make(map[string]struct{}, len(d.Permissions))
	for _, p := range d.Permissions {
		if !ValidPermissionCode(p.Code) {
			return apperrors.Validation("invalid permission code %q", p.Code)
		}
		if _, dup := declared[p.Code]; dup {
			return apperrors.Validation("permission %q declared twice", p.Code)
		}
		declared[p.Code] = struct{}{}
	}
	for _, r := range d.Roles {
		if r.Name == "" {
			return apperrors.Validation("role name is required")
		}
		for _, code := range r.Permissions {
			if _, ok := declared[code]; !ok {
				return apperrors.Validation("role %s references undeclared permission %q", r.Name, code)
			}
		}
	}
	return nil
}

// SeedResult counts what a Seed call changed
type SeedResult struct {
	Permissions  int `json:"permissions"`
	RolesCreated int `json:"roles_created"`
	Grants       int `json:"grants"`
}

// Seed upserts the catalog, creates missing system roles and adds missing
// grants. Existing grants are left alone, so running it twice is a no-op.
func Seed(ctx context.Context, store *Store, data *SeedData, logger *observability.Logger) (*SeedResult, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	result := &SeedResult{}
	for i := range data.Permissions {
		if err := store.UpsertPermission(ctx, &data.Permissions[i]); err != nil {
			return nil, err
		}
		result.Permissions++
	}

	for _, def := range data.Roles {
		role, err := store.GetRoleByName(ctx, def.Name)
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			role = &Role{Name: def.Name, Description: def.Description, IsSystemRole: true}
			if err := store.CreateRole(ctx, role); err != nil {
				return nil, err
			}
			result.RolesCreated++
			logger.WithField("role", def.Name).Info("created system role")
		} else if err != nil {
			return nil, err
		}

		for _, code := range def.Permissions {
			err := store.GrantPermission(ctx, role.ID, code)
			switch {
			case err == nil:
				result.Grants++
			case apperrors.IsKind(err, apperrors.KindConflict):
			default:
				return nil, err
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"permissions":   result.Permissions,
		"roles_created": result.RolesCreated,
		"grants":        result.Grants,
	}).Info("seeded access-control catalog")
	return result, nil
}
