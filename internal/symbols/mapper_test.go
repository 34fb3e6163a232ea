package symbols

import (
	"testing"

	"pricefuse/models"
)

func TestForVenue(t *testing.T) {
	tests := []struct {
		venue  string
		market models.MarketType
		asset  string
		quote  string
		want   string
	}{
		{"binance", models.MarketSpot, "BTC", "USDT", "BTCUSDT"},
		{"binance", models.MarketPerp, "BTC", "USDT", "BTCUSDT"},
		{"bybit", models.MarketSpot, "eth", "usdt", "ETHUSDT"},
		{"bybit", models.MarketPerp, "BTC", "USDT", "BTCUSDT"},
		{"okx", models.MarketSpot, "BTC", "USDT", "BTC-USDT"},
		{"okx", models.MarketPerp, "BTC", "USDT", "BTC-USDT-SWAP"},
		{"kucoin", models.MarketPerp, "BTC", "USDT", "XBTUSDTM"},
		{"kucoin", models.MarketPerp, "ETH", "USDT", "ETHUSDTM"},
		{"kucoin", models.MarketSpot, "BTC", "USDT", "BTC-USDT"},
	}
	for _, tt := range tests {
		if got := ForVenue(tt.venue, tt.market, tt.asset, tt.quote); got != tt.want {
			t.Errorf("ForVenue(%s,%s,%s,%s)=%s want %s", tt.venue, tt.market, tt.asset, tt.quote, got, tt.want)
		}
	}
}

func TestToCanonical(t *testing.T) {
	tests := []struct {
		venue string
		in    string
		want  string
	}{
		{"kucoin", "XBTUSDTM", "BTCUSDT"},
		{"kucoin", "ETHUSDTM", "ETHUSDT"},
		{"okx", "BTC-USDT-SWAP", "BTCUSDT"},
		{"okx", "BTC-USDT", "BTCUSDT"},
		{"binance", "ETHUSDT", "ETHUSDT"},
		{"binance", "1000BONKUSDT", "BONKUSDT"},
		{"bybit", "SHIB1000USDT", "SHIBUSDT"},
		{"bybit", "btcusdt", "BTCUSDT"},
	}
	for _, tt := range tests {
		if got := ToCanonical(tt.venue, tt.in); got != tt.want {
			t.Errorf("ToCanonical(%s,%s)=%s want %s", tt.venue, tt.in, got, tt.want)
		}
	}
}
