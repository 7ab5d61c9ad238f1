package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batabung/batabung/internal/ledger/schema"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Len(t, c.ByKind(schema.KindBank), 9)
	assert.Len(t, c.ByKind(schema.KindEWallet), 6)

	bca, ok := c.Lookup("bca")
	require.True(t, ok)
	assert.Equal(t, "com.bca.android", bca.SourceTag)

	gopay, ok := c.BySourceTag("com.gojek.app")
	require.True(t, ok)
	assert.Equal(t, "GoPay", gopay.Name)
	assert.Equal(t, schema.KindEWallet, gopay.Kind)

	_, ok = c.BySourceTag("")
	assert.False(t, ok, "institutions without an app must not match an empty tag")
}

func TestInstitution_NewAccount(t *testing.T) {
	inst, ok := Default().Lookup("OVO")
	require.True(t, ok)

	acc := inst.NewAccount("u1")
	require.NoError(t, acc.Validate())
	assert.Equal(t, "OVO", acc.Name)
	assert.Equal(t, "com.ovo.android", acc.SourceTag)
	assert.Equal(t, schema.StatusPending, acc.SyncStatus)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad kind", "[[institution]]\nname = \"X\"\nkind = \"crypto\"\n"},
		{"no name", "[[institution]]\nkind = \"bank\"\n"},
		{"duplicate", "[[institution]]\nname = \"X\"\nkind = \"bank\"\n[[institution]]\nname = \"x\"\nkind = \"bank\"\n"},
		{"unknown key", "[[institution]]\nname = \"X\"\nkind = \"bank\"\nlogo = \"x.png\"\n"},
		{"not toml", "[[["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Institutions)

	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[institution]]\nname = \"Jenius\"\nkind = \"bank\"\nsource_tag = \"com.btpn.dc\"\n"), 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	require.Len(t, c.Institutions, 1)
	assert.Equal(t, "Jenius", c.Institutions[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
