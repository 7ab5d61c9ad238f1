// Package catalog lists the banks and e-wallets a user can pick from when
// adding an account.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/batabung/batabung/internal/ledger/schema"
)

//go:embed institutions.toml
var builtin []byte

// Institution is one selectable bank or e-wallet.
type Institution struct {
	Name      string             `toml:"name"`
	Kind      schema.AccountKind `toml:"kind"`
	SourceTag string             `toml:"source_tag"`
}

// Catalog is an ordered list of institutions.
type Catalog struct {
	Institutions []Institution `toml:"institution"`
}

// Parse decodes a catalog in TOML form and checks every entry.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse catalog: unknown keys %v", undecoded)
	}

	seen := make(map[string]bool, len(c.Institutions))
	for i, inst := range c.Institutions {
		if strings.TrimSpace(inst.Name) == "" {
			return nil, fmt.Errorf("institution %d: name is required", i)
		}
		if !inst.Kind.Valid() {
			return nil, fmt.Errorf("institution %q: invalid kind %q", inst.Name, inst.Kind)
		}
		key := strings.ToLower(inst.Name)
		if seen[key] {
			return nil, fmt.Errorf("institution %q listed twice", inst.Name)
		}
		seen[key] = true
	}
	return &c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return Parse(data)
}

// ByKind returns the institutions of one kind in catalog order.
func (c *Catalog) ByKind(kind schema.AccountKind) []Institution {
	var out []Institution
	for _, inst := range c.Institutions {
		if inst.Kind == kind {
			out = append(out, inst)
		}
	}
	return out
}

// Lookup finds an institution by name, ignoring case.
func (c *Catalog) Lookup(name string) (Institution, bool) {
	for _, inst := range c.Institutions {
		if strings.EqualFold(inst.Name, strings.TrimSpace(name)) {
			return inst, true
		}
	}
	return Institution{}, false
}

// BySourceTag finds the institution whose app has the given package name.
func (c *Catalog) BySourceTag(tag string) (Institution, bool) {
	if tag == "" {
		return Institution{}, false
	}
	for _, inst := range c.Institutions {
		if inst.SourceTag == tag {
			return inst, true
		}
	}
	return Institution{}, false
}

// NewAccount returns a pending account for this institution.
func (inst Institution) NewAccount(ownerID string) *schema.Account {
	acc := schema.NewAccount(ownerID, inst.Name, inst.Kind)
	acc.SourceTag = inst.SourceTag
	return acc
}
