package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	goTenant "github.com/MrEthical07/goTenant"
	"github.com/MrEthical07/goTenant/metrics/export/internaldefs"
)

// ContentType is the text exposition format version served by Handler.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Exporter renders client metrics in the Prometheus text format, either
// over HTTP or as a textfile-collector file written on exit.
type Exporter struct {
	source internaldefs.Source
}

// New returns an Exporter reading from client.
func New(client *goTenant.Client) *Exporter {
	return &Exporter{source: client}
}

// NewFromSource returns an Exporter reading from any metrics source.
func NewFromSource(source internaldefs.Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		_, _ = io.WriteString(w, e.Render())
	})
}

// Render returns the current metrics, or "" when nothing was recorded.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}
	r := internaldefs.Read(e.source)
	if r.Empty() {
		return ""
	}

	var b strings.Builder
	for _, fam := range internaldefs.Families {
		header(&b, fam.Name, fam.Help, "counter")
		for _, s := range fam.Samples {
			series(&b, fam.Name, s.Labels, s.Value(r))
		}
	}
	if _, ok := r.Snapshot.Histograms[internaldefs.Latency.ID]; ok {
		latency(&b, r)
	}
	return b.String()
}

// WriteFile writes the metrics to path for a node_exporter textfile
// collector. The file is replaced atomically so the collector never reads
// a partial scrape.
func (e *Exporter) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("metrics: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".metrics-*")
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.WriteString(tmp, e.Render()); err != nil {
		tmp.Close()
		return fmt.Errorf("metrics: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: replace %s: %w", path, err)
	}
	return nil
}

func latency(b *strings.Builder, r internaldefs.Reading) {
	name := internaldefs.Latency.Name
	header(b, name, internaldefs.Latency.Help, "histogram")
	buckets := internaldefs.LatencyBuckets(r)
	for i, n := range buckets {
		le := "+Inf"
		if i < len(internaldefs.LatencyBounds) {
			le = strconv.FormatFloat(internaldefs.LatencyBounds[i], 'g', -1, 64)
		}
		series(b, name+"_bucket", []internaldefs.Label{{Name: "le", Value: le}}, n)
	}
	series(b, name+"_count", nil, buckets[len(buckets)-1])
	// Only bucket counts are tracked.
	series(b, name+"_sum", nil, 0)
}

func header(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func series(b *strings.Builder, name string, labels []internaldefs.Label, v uint64) {
	b.WriteString(name)
	if len(labels) > 0 {
		b.WriteByte('{')
		for i, l := range labels {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(l.Name)
			b.WriteString(`="`)
			b.WriteString(escapeLabel(l.Value))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte('\n')
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

func escapeHelp(s string) string  { return helpEscaper.Replace(s) }
func escapeLabel(s string) string { return labelEscaper.Replace(s) }
