// Package collect implements the end-of-run result collection: every
// rank flattens its local result log and sends it to the coordinator,
// which assembles the ordered (rank, step) row set and writes it out.
package collect

import (
	"context"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/epidemic-sim/epidemic-sim/epidemic/integrate"
	"github.com/epidemic-sim/epidemic-sim/epidemic/transport"
)

const tag = 200
const anomalyTag = 201

// Row is one (rank, step) summary row of the assembled result: one row
// per (rank, simulated step), file order ascending by rank.
type Row struct {
	Rank int
	Time, SAvg, IAvg, RAvg float64
}

// Gather performs the end-of-run collection: each rank flattens its
// local rows into 4*(#local steps) doubles; transport.Gather already
// carries each rank's payload at its own length (this in-process
// substrate never needs the separate size-gather a real MPI gatherv
// requires — each Message already knows its own length), so the
// size-gather and gatherv are one call here. Only the coordinator's
// return value is non-nil.
func Gather(ctx context.Context, w *transport.World, rank int, localRows []integrate.Row) ([]Row, error) {
	payload := encodeRows(localRows)
	gathered, err := transport.Gather(ctx, w, rank, tag, payload)
	if err != nil {
		return nil, fmt.Errorf("collect: gather: %w", err)
	}
	if rank != transport.Coordinator {
		return nil, nil
	}

	var all []Row
	for r, buf := range gathered {
		rows, err := decodeRows(buf)
		if err != nil {
			return nil, fmt.Errorf("collect: decoding rank %d payload: %w", r, err)
		}
		for _, row := range rows {
			all = append(all, Row{Rank: r, Time: row.Time, SAvg: row.SAvg, IAvg: row.IAvg, RAvg: row.RAvg})
		}
	}
	return all, nil
}

// GatherAnomalyCount sums each rank's local anomaly count (cell-steps
// whose clamped and renormalized update integrate.Grid still found in
// violation of the invariants) on the coordinator. Non-coordinator ranks
// get 0 back.
func GatherAnomalyCount(ctx context.Context, w *transport.World, rank, localCount int) (int, error) {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(localCount))
	gathered, err := transport.Gather(ctx, w, rank, anomalyTag, payload)
	if err != nil {
		return 0, fmt.Errorf("collect: gathering anomaly counts: %w", err)
	}
	if rank != transport.Coordinator {
		return 0, nil
	}
	var total int
	for _, buf := range gathered {
		total += int(binary.BigEndian.Uint64(buf))
	}
	return total, nil
}

func encodeRows(rows []integrate.Row) []byte {
	buf := make([]byte, 0, 32*len(rows))
	for _, r := range rows {
		buf = appendFloat64(buf, r.Time)
		buf = appendFloat64(buf, r.SAvg)
		buf = appendFloat64(buf, r.IAvg)
		buf = appendFloat64(buf, r.RAvg)
	}
	return buf
}

func decodeRows(buf []byte) ([]integrate.Row, error) {
	if len(buf)%32 != 0 {
		return nil, fmt.Errorf("collect: payload length %d is not a multiple of 32", len(buf))
	}
	n := len(buf) / 32
	rows := make([]integrate.Row, n)
	for i := range rows {
		off := i * 32
		rows[i] = integrate.Row{
			Time: readFloat64(buf[off : off+8]),
			SAvg: readFloat64(buf[off+8 : off+16]),
			IAvg: readFloat64(buf[off+16 : off+24]),
			RAvg: readFloat64(buf[off+24 : off+32]),
		}
	}
	return rows, nil
}

func appendFloat64(buf []byte, v float64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	return append(buf, tmp[:]...)
}

func readFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

// WriteCSV writes the output: header `Rank,Time,S_avg,I_avg,R_avg`
// then one row per (rank, step), in the order rows is already sorted
// (ascending rank, then step order within rank, as Gather produces it).
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Rank", "Time", "S_avg", "I_avg", "R_avg"}); err != nil {
		return fmt.Errorf("collect: writing header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.Rank),
			strconv.FormatFloat(r.Time, 'g', -1, 64),
			strconv.FormatFloat(r.SAvg, 'g', -1, 64),
			strconv.FormatFloat(r.IAvg, 'g', -1, 64),
			strconv.FormatFloat(r.RAvg, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("collect: writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary is an optional end-of-run aggregate, written alongside the CSV
// as a structured side file rather than log lines only.
type Summary struct {
	Ranks              int     `yaml:"ranks"`
	Duration           string  `yaml:"duration"`
	TotalSteps         int     `yaml:"total_steps"`
	AnomaliesRecovered int     `yaml:"anomalies_recovered"`
	FinalMeanS         float64 `yaml:"final_mean_s"`
	FinalMeanI         float64 `yaml:"final_mean_i"`
	FinalMeanR         float64 `yaml:"final_mean_r"`
	MeanIVariance      float64 `yaml:"mean_i_variance"`
}

// Summarize aggregates the final step's per-rank averages using
// gonum/stat, the same library epidemic/integrate leans on for its
// neighbor-mean computation. totalSteps and anomaliesRecovered are
// carried through from the run rather than derived from rows, since an
// owner-less rank contributes no rows at all.
func Summarize(rows []Row, totalSteps, anomaliesRecovered int, duration time.Duration) Summary {
	if len(rows) == 0 {
		return Summary{Duration: duration.String(), TotalSteps: totalSteps, AnomaliesRecovered: anomaliesRecovered}
	}
	finalTime := rows[0].Time
	for _, r := range rows {
		if r.Time > finalTime {
			finalTime = r.Time
		}
	}
	ranks := make(map[int]struct{})
	var sVals, iVals, rVals []float64
	for _, r := range rows {
		ranks[r.Rank] = struct{}{}
		if r.Time == finalTime {
			sVals = append(sVals, r.SAvg)
			iVals = append(iVals, r.IAvg)
			rVals = append(rVals, r.RAvg)
		}
	}
	return Summary{
		Ranks:              len(ranks),
		Duration:           duration.String(),
		TotalSteps:         totalSteps,
		AnomaliesRecovered: anomaliesRecovered,
		FinalMeanS:         stat.Mean(sVals, nil),
		FinalMeanI:         stat.Mean(iVals, nil),
		FinalMeanR:         stat.Mean(rVals, nil),
		MeanIVariance:      varianceOrZero(iVals),
	}
}

func varianceOrZero(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	return stat.Variance(vals, nil)
}

// WriteSummaryYAML writes s as YAML, the same format the run command's
// --config overlay reads, used here for a summary side file instead.
func WriteSummaryYAML(w io.Writer, s Summary) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(s)
}
