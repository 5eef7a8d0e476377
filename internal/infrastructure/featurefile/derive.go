package featurefile

import (
	"math"
	"regexp"
	"strconv"

	"github.com/markcheno/go-talib"
)

// Columns always derived when absent
var baseColumns = []string{
	"returns",
	"SMA_5", "SMA_10", "SMA_20", "SMA_50",
	"RSI_14",
	"MACD", "MACD_signal", "MACD_hist",
	"bollinger_upper", "bollinger_mid", "bollinger_lower", "bollinger_bandwidth",
	"golden_cross", "death_cross",
}

var periodColumn = regexp.MustCompile(`^(SMA|EMA|RSI|ma)_(\d+)$`)

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bbPeriod   = 20
	bbDev      = 2.0
)

// Derive computes indicator columns over closes and stores the value at the
// last bar in features. Columns already present are left alone; columns
// lacking enough history are set to NaN.
func Derive(closes []float64, wanted []string, features map[string]float64) {
	names := append(append([]string(nil), baseColumns...), wanted...)
	for _, name := range names {
		if _, ok := features[name]; ok {
			continue
		}
		if v, ok := derive(name, closes); ok {
			features[name] = v
		}
	}
}

// derive returns false for names it does not know how to compute
func derive(name string, closes []float64) (float64, bool) {
	n := len(closes)
	switch name {
	case "returns":
		if n < 2 {
			return math.NaN(), true
		}
		return last(talib.Rocp(closes, 1)), true
	case "MACD", "MACD_signal", "MACD_hist":
		if n < macdSlow+macdSignal-1 {
			return math.NaN(), true
		}
		macd, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		values := map[string]float64{
			"MACD":        last(macd),
			"MACD_signal": last(signal),
			"MACD_hist":   last(hist),
		}
		return values[name], true
	case "bollinger_upper", "bollinger_mid", "bollinger_lower", "bollinger_bandwidth":
		if n < bbPeriod {
			return math.NaN(), true
		}
		upper, mid, lower := talib.BBands(closes, bbPeriod, bbDev, bbDev, talib.SMA)
		u, m, l := last(upper), last(mid), last(lower)
		values := map[string]float64{
			"bollinger_upper":     u,
			"bollinger_mid":       m,
			"bollinger_lower":     l,
			"bollinger_bandwidth": u - l,
		}
		return values[name], true
	case "golden_cross", "death_cross":
		if n < 51 {
			return math.NaN(), true
		}
		fast, slow := talib.Sma(closes, 20), talib.Sma(closes, 50)
		nowF, nowS := fast[n-1], slow[n-1]
		prevF, prevS := fast[n-2], slow[n-2]
		var cross bool
		if name == "golden_cross" {
			cross = nowF > nowS && prevF <= prevS
		} else {
			cross = nowF < nowS && prevF >= prevS
		}
		if cross {
			return 1, true
		}
		return 0, true
	}

	m := periodColumn.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	period, err := strconv.Atoi(m[2])
	if err != nil || period < 1 {
		return 0, false
	}
	switch m[1] {
	case "SMA", "ma":
		if n < period {
			return math.NaN(), true
		}
		return last(talib.Sma(closes, period)), true
	case "EMA":
		if n < period {
			return math.NaN(), true
		}
		return last(talib.Ema(closes, period)), true
	case "RSI":
		if n < period+1 || period < 2 {
			return math.NaN(), true
		}
		return last(talib.Rsi(closes, period)), true
	}
	return 0, false
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
