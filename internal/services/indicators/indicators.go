package indicators

import (
    "math"
    "time"

    "github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

// MinBars is the window length below which indicator output is not trusted.
const MinBars = 50

// Closes extracts the close series from candles.
func Closes(candles []models.Candle) []float64 {
    out := make([]float64, len(candles))
    for i, c := range candles {
        out[i] = c.Close
    }
    return out
}

// SMA returns the simple moving average of the trailing period, or 0 when
// the series is too short.
func SMA(values []float64, period int) float64 {
    if period <= 0 || len(values) < period {
        return 0
    }
    sum := 0.0
    for i := len(values) - period; i < len(values); i++ {
        sum += values[i]
    }
    return sum / float64(period)
}

// SMASeries returns a slice aligned to values where out[i] is the simple
// moving average ending at i. Positions before the first full window are 0.
func SMASeries(values []float64, period int) []float64 {
    out := make([]float64, len(values))
    if period <= 0 || len(values) < period {
        return out
    }
    sum := 0.0
    for i, v := range values {
        sum += v
        if i >= period {
            sum -= values[i-period]
        }
        if i >= period-1 {
            out[i] = sum / float64(period)
        }
    }
    return out
}

// EMASeries returns the exponential moving average aligned to values,
// seeded with the simple average of the first period elements. Positions
// before the seed are 0.
func EMASeries(values []float64, period int) []float64 {
    out := make([]float64, len(values))
    if period <= 0 || len(values) < period {
        return out
    }
    seed := 0.0
    for i := 0; i < period; i++ {
        seed += values[i]
    }
    seed /= float64(period)
    out[period-1] = seed
    k := 2.0 / (float64(period) + 1.0)
    prev := seed
    for i := period; i < len(values); i++ {
        prev = (values[i]-prev)*k + prev
        out[i] = prev
    }
    return out
}

// RSI returns the Wilder relative strength index of the trailing series.
// An all-gain window reads 100, an all-loss window 0, and a flat window 50.
func RSI(values []float64, period int) float64 {
    if period <= 0 || len(values) < period+1 {
        return 0
    }
    avgGain := 0.0
    avgLoss := 0.0
    for i := 1; i <= period; i++ {
        d := values[i] - values[i-1]
        if d > 0 {
            avgGain += d
        } else {
            avgLoss -= d
        }
    }
    avgGain /= float64(period)
    avgLoss /= float64(period)
    for i := period + 1; i < len(values); i++ {
        d := values[i] - values[i-1]
        gain, loss := 0.0, 0.0
        if d > 0 {
            gain = d
        } else {
            loss = -d
        }
        avgGain = (avgGain*float64(period-1) + gain) / float64(period)
        avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
    }
    if avgGain+avgLoss == 0 {
        return 50
    }
    if avgLoss == 0 {
        return 100
    }
    rs := avgGain / avgLoss
    return 100 - 100/(1+rs)
}

// MACD returns the latest MACD line, signal line, and histogram for the
// standard 12/26/9 configuration. All zeros when the series is too short.
func MACD(values []float64) (macd, signal, hist float64) {
    const fast, slow, signalPeriod = 12, 26, 9
    if len(values) < slow+signalPeriod {
        return 0, 0, 0
    }
    emaFast := EMASeries(values, fast)
    emaSlow := EMASeries(values, slow)
    line := make([]float64, 0, len(values)-slow+1)
    for i := slow - 1; i < len(values); i++ {
        line = append(line, emaFast[i]-emaSlow[i])
    }
    signalSeries := EMASeries(line, signalPeriod)
    macd = line[len(line)-1]
    signal = signalSeries[len(signalSeries)-1]
    return macd, signal, macd - signal
}

// Bollinger returns the latest upper, middle, and lower band using a
// simple moving average and k population standard deviations.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower float64) {
    if period <= 1 || len(values) < period {
        return 0, 0, 0
    }
    middle = SMA(values, period)
    sum2 := 0.0
    for i := len(values) - period; i < len(values); i++ {
        d := values[i] - middle
        sum2 += d * d
    }
    sd := math.Sqrt(sum2 / float64(period))
    return middle + k*sd, middle, middle - k*sd
}

// Compute derives the full indicator set for one symbol from its candle
// window. Ready is false when the window is too short to trust.
func Compute(symbol string, candles []models.Candle, at time.Time) models.IndicatorSet {
    set := models.IndicatorSet{Symbol: symbol, Timestamp: at}
    if len(candles) <= MinBars {
        return set
    }
    closes := Closes(candles)
    set.RSI = RSI(closes, 14)
    set.SMA5 = SMA(closes, 5)
    set.SMA20 = SMA(closes, 20)
    ema12 := EMASeries(closes, 12)
    ema26 := EMASeries(closes, 26)
    set.EMA12 = ema12[len(ema12)-1]
    set.EMA26 = ema26[len(ema26)-1]
    set.MACD, set.MACDSignal, _ = MACD(closes)
    set.BollUpper, set.BollMiddle, set.BollLower = Bollinger(closes, 20, 2)
    set.Ready = true
    return set
}
