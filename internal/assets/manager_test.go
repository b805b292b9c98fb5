package assets

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jing = "0x15c12f6854c88175d2cd1448ffcf668be61cf4aa"

func TestAddAsset_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.json")
	m := NewManagerAt(path)
	ctx := context.Background()

	added, err := m.AddAsset(ctx, "Mainnet", Asset{Address: jing, Symbol: "JINGRM", Decimals: 18})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = m.AddAsset(ctx, "mainnet", Asset{Address: jing, Symbol: "JINGRM", Decimals: 18})
	require.NoError(t, err)
	assert.False(t, added)

	list, err := NewManagerAt(path).ListForNetwork(ctx, "mainnet")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, common.HexToAddress(jing).Hex(), list[0].Address)
}

func TestAddAsset_Validation(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "assets.json"))
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "mainnet", Asset{Address: "0x1234", Symbol: "X"})
	assert.Error(t, err)
	_, err = m.AddAsset(ctx, "", Asset{Address: jing, Symbol: "X"})
	assert.Error(t, err)
	_, err = m.AddAsset(ctx, "mainnet", Asset{Address: jing})
	assert.Error(t, err)
}

func TestRemoveAsset(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "assets.json"))
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "sepolia", Asset{Address: jing, Symbol: "JINGRM", Decimals: 18})
	require.NoError(t, err)
	require.NoError(t, m.RemoveAsset(ctx, "sepolia", jing))

	list, err := m.ListForNetwork(ctx, "sepolia")
	require.NoError(t, err)
	assert.Empty(t, list)
}
