package core

import (
	"fmt"
	"strings"
)

// quoteSuffixes is the fixed suffix-match list used to split an unpunctuated
// symbol like "BTCUSDT" into base and quote. Order matters: longer/more
// specific suffixes are tried first so "USDT" wins over "USD".
var quoteSuffixes = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// TradingPair is a base/quote asset pair, e.g. {Base: "BTC", Quote: "USDT"}.
type TradingPair struct {
	Base  string
	Quote string
}

// String renders the pair in "BASE-QUOTE" form.
func (p TradingPair) String() string {
	return fmt.Sprintf("%s-%s", p.Base, p.Quote)
}

// ParseTradingPair accepts "BTC-USDT", "BTC/USDT", or the unpunctuated
// "BTCUSDT" (suffix-matched against the fixed quote list).
func ParseTradingPair(s string) (TradingPair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return TradingPair{}, fmt.Errorf("core: empty trading pair")
	}

	for _, sep := range []string{"-", "/"} {
		if idx := strings.Index(s, sep); idx > 0 && idx < len(s)-1 {
			return TradingPair{Base: s[:idx], Quote: s[idx+1:]}, nil
		}
	}

	for _, quote := range quoteSuffixes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return TradingPair{Base: s[:len(s)-len(quote)], Quote: quote}, nil
		}
	}

	return TradingPair{}, fmt.Errorf("core: cannot parse trading pair %q: no recognized quote suffix", s)
}
