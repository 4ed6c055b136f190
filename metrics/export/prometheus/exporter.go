package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goThrottle "github.com/MrEthical07/goThrottle"
	"github.com/MrEthical07/goThrottle/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goThrottle.MetricsSnapshot
	AuditDropped() uint64
}

// namespacer is implemented by *goThrottle.Engine. Sources that implement it
// get a namespace label on every series.
type namespacer interface {
	Namespace() string
}

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
	labels string
}

// NewPrometheusExporter reads from engine on every scrape. Series carry a
// namespace="<engine namespace>" label so several engines can share a
// scrape target.
func NewPrometheusExporter(engine *goThrottle.Engine) *PrometheusExporter {
	if engine == nil {
		return &PrometheusExporter{}
	}
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource reads from any snapshot provider, e.g. a
// test double.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{source: source}
	if ns, ok := source.(namespacer); ok {
		p.labels = `namespace="` + escapeLabel(ns.Namespace()) + `"`
	}
	return p
}

// Handler serves [PrometheusExporter.Render] with the text exposition content type.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" when metrics are disabled and
// no audit events were dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		p.writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		p.writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	p.writeCounter(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func (p *PrometheusExporter) writeSample(b *strings.Builder, name, extraLabel string, value uint64) {
	b.WriteString(name)
	labels := p.labels
	if extraLabel != "" {
		if labels != "" {
			labels += ","
		}
		labels += extraLabel
	}
	if labels != "" {
		b.WriteByte('{')
		b.WriteString(labels)
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func (p *PrometheusExporter) writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	p.writeSample(b, name, "", value)
}

func (p *PrometheusExporter) writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		p.writeSample(b, name+"_bucket", `le="`+le+`"`, cumulative[i])
	}
	p.writeSample(b, name+"_count", "", cumulative[len(cumulative)-1])
	// Snapshots carry bucket counts only.
	p.writeSample(b, name+"_sum", "", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}
