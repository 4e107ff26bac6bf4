package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := NewDefaultCatalog()

	d, ok := c.Lookup(DefaultAgentID)
	require.True(t, ok)
	require.Equal(t, "Default Assistant", d.Name)

	_, ok = c.Lookup("agent_missing")
	require.False(t, ok)

	ids := []string{}
	for _, d := range c.List() {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []string{"agent_default", "agent_creative", "agent_technical"}, ids)
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(Descriptor{ID: "a"}, Descriptor{ID: "a"})
	require.ErrorContains(t, err, "duplicate agent id")

	_, err = NewCatalog(Descriptor{ID: "  "})
	require.ErrorContains(t, err, "empty agent id")
}

func TestNewCatalogDefaultsNameToID(t *testing.T) {
	c, err := NewCatalog(Descriptor{ID: "bare"})
	require.NoError(t, err)
	d, ok := c.Lookup("bare")
	require.True(t, ok)
	require.Equal(t, "bare", d.Name)
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  - id: agent_pirate
    name: Pirate
    description: talks like a pirate
    system_prompt: Arr.
  - id: agent_poet
    name: Poet
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, c.List(), 2)

	d, ok := c.Lookup("agent_pirate")
	require.True(t, ok)
	require.Equal(t, "Pirate", d.Name)
	require.Equal(t, "Arr.", d.SystemPrompt)
}

func TestParseCatalogRejectsEmpty(t *testing.T) {
	_, err := ParseCatalog([]byte("agents: []\n"))
	require.ErrorContains(t, err, "no agents defined")

	_, err = ParseCatalog([]byte("agents: [\n"))
	require.ErrorContains(t, err, "parse agent catalog")
}
