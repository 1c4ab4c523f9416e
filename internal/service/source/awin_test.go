package source

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
)

const awinSampleFeed = `aw_product_id,product_name,search_price,rrp_price,category_name,merchant_image_url,aw_deep_link
111,Notebook Gamer,3499.90,4999.90,Informática,https://img.example/1.jpg,https://www.awin1.com/pclick.php?p=111
222,Cafeteira Expresso,299.00,399.00,Eletroportáteis,https://img.example/2.jpg,https://www.awin1.com/pclick.php?p=222
333,,199.00,0,Casa,https://img.example/3.jpg,https://www.awin1.com/pclick.php?p=333
444,Sem Preço,abc,0,Casa,,https://www.awin1.com/pclick.php?p=444
555,Fritadeira,449.90,599.90,Eletroportáteis,https://img.example/5.jpg,https://www.awin1.com/pclick.php?p=555
`

func newTestAwin() *AwinAdapter {
	return NewAwinAdapter(&config.AwinConfig{FeedURL: "https://productdata.awin.com/feed"}, zap.NewNop())
}

func TestParseFeedSkipsMalformedRows(t *testing.T) {
	adapter := newTestAwin()

	listings, skipped, err := adapter.parseFeed(strings.NewReader(awinSampleFeed), 50)
	require.NoError(t, err)

	// Rows 333 (empty name) and 444 (unparsable price) are dropped.
	require.Len(t, listings, 3)
	assert.Equal(t, 2, skipped)

	assert.Equal(t, "111", listings[0].NativeID)
	assert.Equal(t, "Notebook Gamer", listings[0].Title)
	assert.Equal(t, 3499.90, listings[0].Price)
	assert.Equal(t, 4999.90, listings[0].OriginalPrice)
	assert.Equal(t, NameAwin, listings[0].Source)
	assert.Equal(t, "https://www.awin1.com/pclick.php?p=555", listings[2].ProductURL)
}

func TestParseFeedHonorsLimit(t *testing.T) {
	adapter := newTestAwin()

	listings, _, err := adapter.parseFeed(strings.NewReader(awinSampleFeed), 1)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestParseFeedDecompressesGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(awinSampleFeed))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	adapter := newTestAwin()
	listings, _, err := adapter.parseFeed(&buf, 50)
	require.NoError(t, err)
	assert.Len(t, listings, 3)
}

func TestDecompressIfGzipLeavesPlainTextAlone(t *testing.T) {
	reader, err := decompressIfGzip(strings.NewReader("plain,csv,data"))
	require.NoError(t, err)

	out := make([]byte, 5)
	n, _ := reader.Read(out)
	assert.Equal(t, "plain", string(out[:n]))
}

func TestLooksLikeHeader(t *testing.T) {
	assert.True(t, looksLikeHeader([]string{"aw_product_id", "product_name", "search_price"}))
	assert.False(t, looksLikeHeader([]string{"111", "Notebook Gamer", "3499.90"}))
	assert.False(t, looksLikeHeader([]string{"only-one-field"}))
}

func TestParseAwinRowRejectsShortRecords(t *testing.T) {
	_, ok := parseAwinRow([]string{"111", "Notebook"})
	assert.False(t, ok)

	_, ok = parseAwinRow([]string{"111", "Notebook", "-5", "0", "Cat", "", "https://x"})
	assert.False(t, ok)
}
