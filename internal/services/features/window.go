package features

import (
    "math"

    "github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
    drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
)

// LogReturns computes r_t = ln(C_t / C_{t-1}) over the closes of a
// candle window. Non-positive closes contribute a zero return.
func LogReturns(candles []models.Candle) []float64 {
    if len(candles) < 2 {
        return nil
    }
    out := make([]float64, 0, len(candles)-1)
    for i := 1; i < len(candles); i++ {
        prev := candles[i-1].Close
        cur := candles[i].Close
        if prev <= 0 || cur <= 0 {
            out = append(out, 0)
            continue
        }
        out = append(out, math.Log(cur/prev))
    }
    return out
}

// RealizedVolatility returns the annualized sample volatility of the
// trailing window of log returns, or 0 when the series is too short.
func RealizedVolatility(returns []float64, window int, barsPerYear float64) float64 {
    if window <= 1 || len(returns) < window {
        return 0
    }
    sum := 0.0
    sum2 := 0.0
    for i := len(returns) - window; i < len(returns); i++ {
        r := returns[i]
        sum += r
        sum2 += r * r
    }
    n := float64(window)
    mean := sum / n
    variance := (sum2 - n*mean*mean) / (n - 1)
    if variance < 0 {
        variance = 0
    }
    return math.Sqrt(variance * barsPerYear)
}

// BarsPerYear returns how many bars of the timeframe fit in a year,
// used to annualize per-bar volatility.
func BarsPerYear(tf drepo.Timeframe) float64 {
    d := tf.Duration()
    if d <= 0 {
        return 0
    }
    year := 365 * 24 * float64(60*60)
    return year / d.Seconds()
}

// MaxDrawdown returns the deepest peak-to-trough decline of the close
// series as a positive fraction, 0 for monotonically rising input.
func MaxDrawdown(candles []models.Candle) float64 {
    peak := 0.0
    worst := 0.0
    for _, c := range candles {
        if c.Close > peak {
            peak = c.Close
        }
        if peak <= 0 {
            continue
        }
        dd := (peak - c.Close) / peak
        if dd > worst {
            worst = dd
        }
    }
    return worst
}

// WindowChangePct returns the percent change from the first to the
// last close of the window.
func WindowChangePct(candles []models.Candle) float64 {
    if len(candles) < 2 {
        return 0
    }
    first := candles[0].Close
    last := candles[len(candles)-1].Close
    if first <= 0 {
        return 0
    }
    return (last - first) / first * 100
}
