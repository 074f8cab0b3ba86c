package prometheus

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders engine metrics in the Prometheus text
// exposition format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter creates an exporter that reads from engine.
func NewPrometheusExporter(engine *gatekeeper.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates an exporter over any Source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render. Mount it with gin.WrapH.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body := p.Render()
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(body))
	})
}

// Render returns the current metrics. It is empty when metrics are disabled
// and nothing engine-level has been recorded.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	snapshot := p.source.MetricsSnapshot()
	if internaldefs.Idle(p.source, snapshot) {
		return ""
	}

	w := textWriter{}
	w.buf.Grow(8192)
	for _, def := range internaldefs.CounterDefs {
		w.family(def.Name, def.Help, "counter")
		w.sample(def.Name, "", snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		w.histogram(def.Name, def.Help, cumulative, snapshot.HistogramSums[def.ID].Seconds())
	}
	for _, def := range internaldefs.ExtraDefs {
		kind := "counter"
		if def.Kind == internaldefs.KindGauge {
			kind = "gauge"
		}
		w.family(def.Name, def.Help, kind)
		w.sample(def.Name, "", def.Read(p.source))
	}
	return w.buf.String()
}

type textWriter struct {
	buf bytes.Buffer
}

func (w *textWriter) family(name, help, kind string) {
	fmt.Fprintf(&w.buf, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func (w *textWriter) sample(name, labels string, value uint64) {
	if labels != "" {
		fmt.Fprintf(&w.buf, "%s{%s} %d\n", name, labels, value)
		return
	}
	fmt.Fprintf(&w.buf, "%s %d\n", name, value)
}

func (w *textWriter) histogram(name, help string, cumulative [8]uint64, sumSeconds float64) {
	w.family(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", `le="`+le+`"`, cumulative[i])
	}
	w.sample(name+"_count", "", cumulative[len(cumulative)-1])
	fmt.Fprintf(&w.buf, "%s_sum %s\n", name, strconv.FormatFloat(sumSeconds, 'g', -1, 64))
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
