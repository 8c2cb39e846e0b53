package routing

import (
	"testing"

	"hitomidl/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *domain.RoutingTable {
	return &domain.RoutingTable{
		DefaultSubdomainOffset: 0,
		Overrides:              map[int]int{0xabc: 1},
		PathSalt:               "1728345600/",
	}
}

func TestDeriveURLOracleScenarios(t *testing.T) {
	table := testTable()

	url, err := deriveURL(table, "deadbeefabc", "webp")
	require.NoError(t, err)
	assert.Equal(t, "https://w2.gold-usergeneratedcontent.net/webp/1728345600/2748/deadbeefabc.webp", url)

	url, err = deriveURL(table, "deadbeef123", "webp")
	require.NoError(t, err)
	assert.Equal(t, "https://w1.gold-usergeneratedcontent.net/webp/1728345600/291/deadbeef123.webp", url)

	url, err = deriveURL(table, "deadbeef123", "avif")
	require.NoError(t, err)
	assert.Equal(t, "https://a1.gold-usergeneratedcontent.net/avif/1728345600/291/deadbeef123.avif", url)
}

func TestDeriveURLRejectsShortHash(t *testing.T) {
	_, err := deriveURL(testTable(), "ab", "webp")
	require.Error(t, err)
}

func TestParseGGJS(t *testing.T) {
	body := `
var o = 0;
function gg(){
  switch(g){
    case 2748: o = 1; break;
    case 2749: o = 1; break;
    default: break;
  }
}
var b = {};
b: '1728345600/'
`
	table, err := parseGGJS(body)
	require.NoError(t, err)
	assert.Equal(t, 0, table.DefaultSubdomainOffset)
	assert.Equal(t, "1728345600/", table.PathSalt)
	assert.Equal(t, 1, table.Overrides[2748])
	assert.Equal(t, 1, table.Overrides[2749])
}
