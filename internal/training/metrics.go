package training

import (
	"math"

	"github.com/Veraticus/nourish/internal/artifacts"
)

// evaluate returns MAE and R² per output plus their uniform average, the
// aggregation the held-out report has always used.
func evaluate(outputs []string, want, got [][]float64) (map[string]artifacts.Metric, artifacts.Metric) {
	per := make(map[string]artifacts.Metric, len(outputs))
	if len(want) == 0 {
		return per, artifacts.Metric{}
	}

	var overall artifacts.Metric
	for j, name := range outputs {
		m := artifacts.Metric{
			MAE: meanAbsoluteError(column(want, j), column(got, j)),
			R2:  r2Score(column(want, j), column(got, j)),
		}
		per[name] = m
		overall.MAE += m.MAE
		overall.R2 += m.R2
	}
	overall.MAE /= float64(len(outputs))
	overall.R2 /= float64(len(outputs))
	return per, overall
}

func column(rows [][]float64, j int) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = rows[i][j]
	}
	return out
}

func meanAbsoluteError(want, got []float64) float64 {
	sum := 0.0
	for i := range want {
		sum += math.Abs(want[i] - got[i])
	}
	return sum / float64(len(want))
}

// r2Score is 1 - SSres/SStot. A constant target scores 1 when predicted
// exactly and 0 otherwise.
func r2Score(want, got []float64) float64 {
	mean := 0.0
	for _, v := range want {
		mean += v
	}
	mean /= float64(len(want))

	var ssRes, ssTot float64
	for i := range want {
		ssRes += (want[i] - got[i]) * (want[i] - got[i])
		ssTot += (want[i] - mean) * (want[i] - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
