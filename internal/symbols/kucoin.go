package symbols

import "strings"

// NormalizeKucoinSymbol converts a KuCoin futures contract symbol to the
// canonical form. Examples:
//
//	XBTUSDTM -> BTCUSDT
//	ETHUSDTM -> ETHUSDT
func NormalizeKucoinSymbol(sym string) string {
	sym = strings.ReplaceAll(sym, "-", "")
	// trailing 'M' denotes a futures contract
	sym = strings.TrimSuffix(sym, "M")
	if strings.HasPrefix(sym, "XBT") {
		sym = "BTC" + sym[3:]
	}
	return sym
}
