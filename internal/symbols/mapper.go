package symbols

import (
	"strings"

	"pricefuse/models"
)

// ForVenue resolves the wire symbol a venue expects for an asset/quote pair
// on the given market leg. Asset and quote are canonical uppercase codes
// (BTC, USDT).
// Currently supported venues: binance, bybit, okx, kucoin.
func ForVenue(venueID string, market models.MarketType, asset, quote string) string {
	asset = strings.ToUpper(asset)
	quote = strings.ToUpper(quote)
	switch strings.ToLower(venueID) {
	case "binance", "bybit":
		return asset + quote
	case "okx":
		if market == models.MarketPerp {
			return asset + "-" + quote + "-SWAP"
		}
		return asset + "-" + quote
	case "kucoin":
		if market == models.MarketPerp {
			if asset == "BTC" {
				asset = "XBT"
			}
			return asset + quote + "M"
		}
		return asset + "-" + quote
	default:
		return asset + quote
	}
}

// ToCanonical converts a venue's wire symbol back to the canonical
// dash-free uppercase form, with BTC instead of XBT and without the
// 1000-multiplier prefixes some venues list small-cap contracts under.
func ToCanonical(venueID, sym string) string {
	sym = strings.ToUpper(sym)
	switch strings.ToLower(venueID) {
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case "kucoin":
		sym = NormalizeKucoinSymbol(sym)
	case "okx":
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	default:
		// others already use the desired format
	}
	return sym
}
