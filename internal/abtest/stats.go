package abtest

import "math"

// Significance is the outcome of the two-variant comparison. The
// p-values are quantized buckets from the t-statistic, not a real
// Student's t-test; downstream behavior depends on this approximation.
type Significance struct {
	IsSignificant   bool    `json:"is_significant"`
	PValue          float64 `json:"p_value"`
	ConfidenceLevel float64 `json:"confidence_level"`
	MeanDifference  float64 `json:"mean_difference"`
	EffectSize      float64 `json:"effect_size"`
	TStatistic      float64 `json:"t_statistic"`
	Err             string  `json:"error,omitempty"`
}

// CalculateSignificance compares two variants' score samples. Fewer
// than two points on either side yields a structured insufficient-data
// result; this is an expected steady-state condition early in a test.
func CalculateSignificance(variantA, variantB []float64, confidenceLevel float64) Significance {
	if len(variantA) < 2 || len(variantB) < 2 {
		return Significance{
			IsSignificant:   false,
			PValue:          1.0,
			ConfidenceLevel: confidenceLevel,
			Err:             "Insufficient data for statistical analysis",
		}
	}

	meanA, stdA := meanStdDev(variantA)
	meanB, stdB := meanStdDev(variantB)

	pooledSE := math.Sqrt(stdA*stdA/float64(len(variantA)) + stdB*stdB/float64(len(variantB)))

	if pooledSE == 0 {
		diff := meanA - meanB
		result := Significance{
			IsSignificant:   math.Abs(diff) > 0,
			PValue:          1.0,
			ConfidenceLevel: confidenceLevel,
			MeanDifference:  diff,
		}
		if math.Abs(diff) > 0 {
			result.PValue = 0.0
		}
		return result
	}

	tStat := math.Abs(meanA-meanB) / pooledSE

	var pValue float64
	switch {
	case tStat > 2.0:
		pValue = 0.05
	case tStat > 1.65:
		pValue = 0.1
	default:
		pValue = 0.2
	}

	return Significance{
		IsSignificant:   pValue < (1 - confidenceLevel),
		PValue:          pValue,
		ConfidenceLevel: confidenceLevel,
		MeanDifference:  meanA - meanB,
		EffectSize:      math.Abs(meanA-meanB) / math.Max(math.Max(stdA, stdB), 0.1),
		TStatistic:      tStat,
	}
}

// ConfidenceInterval returns (low, high) around the sample mean using
// a fixed t-value approximation instead of a degrees-of-freedom table.
func ConfidenceInterval(data []float64, confidenceLevel float64) (float64, float64) {
	if len(data) < 2 {
		return 0.0, 0.0
	}

	mean, std := meanStdDev(data)

	tValue := 1.65
	if confidenceLevel >= 0.95 {
		tValue = 2.0
		if len(data) >= 30 {
			tValue = 1.96
		}
	}

	margin := tValue * std / math.Sqrt(float64(len(data)))
	return mean - margin, mean + margin
}

// meanStdDev returns the sample mean and sample standard deviation.
func meanStdDev(data []float64) (float64, float64) {
	n := float64(len(data))
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / n

	if len(data) < 2 {
		return mean, 0.0
	}

	variance := 0.0
	for _, v := range data {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / (n - 1))
}
