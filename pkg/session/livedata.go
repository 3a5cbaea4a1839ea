package session

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/obddiag/obdscan/pkg/ebus"
	"github.com/obddiag/obdscan/pkg/obd"
	"github.com/obddiag/obdscan/pkg/stats"
)

const (
	liveDataCycles     = 3
	deepLiveDataCycles = 10
)

// readLiveData polls the configured PIDs for a number of cycles,
// aggregates the decoded values and appends the derived estimates.
// Failed decodes are skipped; a parameter nothing answered for simply
// has no statistics.
func (s *Session) readLiveData() {
	cycles := liveDataCycles
	if s.DeepScan {
		cycles = deepLiveDataCycles
	}

	var w *csvLog
	if s.CSVPath != "" {
		var err error
		w, err = newCSVLog(s.CSVPath, s.PIDs)
		if err != nil {
			s.recordWarning(fmt.Sprintf("live data log: %v", err))
		} else {
			defer w.Close()
		}
	}

	agg := stats.NewAggregator()
	for cycle := 0; cycle < cycles; cycle++ {
		row := make(map[string]float64, len(s.PIDs))
		for _, def := range s.PIDs {
			if s.cancelled() {
				return
			}
			resp, err := s.Transport.Send(s.ctx, obd.Command(def.Service, def.PID), s.CommandWait)
			if cancelledErr(err) {
				return
			}
			if err != nil {
				if !isSilence(err) {
					s.stepError(err)
				}
				continue
			}
			v, ok := obd.ParseResponse(resp, def)
			if !ok {
				continue
			}
			agg.Add(stats.Sample{Name: def.Name, Value: v.Float, Unit: v.Unit, Time: v.Time})
			row[def.Name] = v.Float
			s.publish(ebus.Event{Topic: ebus.TopicValue, Name: def.Name, Value: v.Float})
		}
		if w != nil {
			w.Write(time.Now(), row)
		}
		s.stepProgress(50, 70, cycle, cycles)
	}

	results := agg.Compute()
	results = stats.Derive(agg, results)

	s.mu.Lock()
	s.result.LiveData = LiveDataResult{Cycles: cycles, Statistics: results}
	s.mu.Unlock()
}

// csvLog appends one row per polling cycle, columns in PID order.
type csvLog struct {
	fh   *os.File
	w    *csv.Writer
	cols []string
}

func newCSVLog(path string, pids []obd.Definition) (*csvLog, error) {
	fh, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	l := &csvLog{fh: fh, w: csv.NewWriter(fh)}
	header := []string{"time"}
	for _, def := range pids {
		l.cols = append(l.cols, def.Name)
		header = append(header, def.Name)
	}
	l.w.Write(header)
	return l, nil
}

func (l *csvLog) Write(ts time.Time, row map[string]float64) {
	record := []string{ts.Format(time.RFC3339)}
	for _, col := range l.cols {
		if v, ok := row[col]; ok {
			record = append(record, fmt.Sprintf("%g", v))
		} else {
			record = append(record, "")
		}
	}
	l.w.Write(record)
}

func (l *csvLog) Close() {
	l.w.Flush()
	l.fh.Close()
}
