package benchmark

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
)

// Host describes the machine a run executed on.
type Host struct {
	OS            string   `json:"os"`
	Arch          string   `json:"arch"`
	CPU           string   `json:"cpu"`
	PhysicalCores int      `json:"physicalCores"`
	LogicalCores  int      `json:"logicalCores"`
	Features      []string `json:"features,omitempty"`
	GoVersion     string   `json:"goVersion"`
	GOMAXPROCS    int      `json:"gomaxprocs"`
}

// CurrentHost inspects the running machine.
func CurrentHost() Host {
	var features []string
	for _, f := range []cpuid.FeatureID{cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpuid.CPU.Supports(f) {
			features = append(features, f.String())
		}
	}
	return Host{
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		CPU:           cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		Features:      features,
		GoVersion:     runtime.Version(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
	}
}

// Result is one (build parameters, ef) point of a run.
type Result struct {
	Algorithm  string        `json:"algorithm"`
	Params     MethodParams  `json:"params"`
	EF         int           `json:"ef"`
	K          int           `json:"k"`
	BuildTime  time.Duration `json:"buildTime"`
	IndexBytes int64         `json:"indexBytes"`
	// MemoryKiB is the memory in use after the queries; IndexSizeKiB is the
	// growth across the build.
	MemoryKiB     int64          `json:"memoryKiB"`
	PeakMemoryKiB int64          `json:"peakMemoryKiB"`
	IndexSizeKiB  int64          `json:"indexSizeKiB"`
	Recall        float64        `json:"recall"`
	QPS           float64        `json:"qps"`
	BatchQPS      float64        `json:"batchQps,omitempty"`
	Latency       LatencyStats   `json:"latency"`
	Additional    map[string]any `json:"additional,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	RunID     uuid.UUID     `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Dataset   string        `json:"dataset"`
	Metric    string        `json:"metric"`
	Train     int           `json:"train"`
	Test      int           `json:"test"`
	Dimension int           `json:"dimension"`
	Host      Host          `json:"host"`
	Results   []Result      `json:"results"`
}

// NewReport starts an empty report with a fresh run ID.
func NewReport(ds *Dataset) *Report {
	r := &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Host:      CurrentHost(),
	}
	if ds != nil {
		r.Dataset = ds.Name
		r.Metric = ds.Metric.String()
		r.Train = len(ds.Train)
		r.Test = len(ds.Test)
		r.Dimension = ds.Dimension()
	}
	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// SaveJSON writes the report to path.
func (r *Report) SaveJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteTable writes a human-readable summary.
func (r *Report) WriteTable(w io.Writer) error {
	fmt.Fprintf(w, "run %s  dataset %s (%s, %d train, %d test, dim %d)\n",
		r.RunID, r.Dataset, r.Metric, r.Train, r.Test, r.Dimension)
	fmt.Fprintf(w, "host %s, %d cores, %s/%s\n\n", r.Host.CPU, r.Host.PhysicalCores, r.Host.OS, r.Host.Arch)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "algorithm\tef\trecall\tqps\tbatch qps\tp50\tp99\tbuild\tindex\trss\tpeak rss\t")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			res.Algorithm,
			res.EF,
			res.Recall,
			humanize.CommafWithDigits(res.QPS, 1),
			humanize.CommafWithDigits(res.BatchQPS, 1),
			seconds(res.Latency.P50),
			seconds(res.Latency.P99),
			res.BuildTime.Round(time.Millisecond),
			humanize.IBytes(uint64(max(res.IndexBytes, 0))),
			humanize.IBytes(uint64(max(res.MemoryKiB, 0))*1024),
			humanize.IBytes(uint64(max(res.PeakMemoryKiB, 0))*1024),
		)
	}
	return tw.Flush()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond)
}
