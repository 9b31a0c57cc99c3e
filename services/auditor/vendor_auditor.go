package auditor

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/reform.v1"

	"github.com/gebv/airtime/httputils"
	"github.com/gebv/airtime/provider"
)

const (
	toInsertCap   = 1024
	maxBatch      = 256
	maxBatchDelay = time.Second
	maxErrorLen   = 1024
)

//go:generate reform

//reform:vendor_calls
type VendorCall struct {
	ID         int64     `reform:"id,pk"`
	Vendor     string    `reform:"vendor"`
	Method     string    `reform:"method"`
	Path       string    `reform:"path"`
	StatusCode int64     `reform:"status_code"`
	DurationMS int64     `reform:"duration_ms"`
	Error      string    `reform:"error"`
	RequestID  string    `reform:"request_id"`
	CreatedAt  time.Time `reform:"created_at"`
}

// VendorAuditor writes every outbound vendor call to the vendor_calls table in batches.
type VendorAuditor struct {
	db       *reform.DB
	toInsert chan *VendorCall
	l        *zap.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once

	mInsertLen      prometheus.Gauge
	mInsertCap      prometheus.Gauge
	mDropped        prometheus.Counter
	mCalls          *prometheus.CounterVec
	mInsertSize     prometheus.Histogram
	mInsertDuration prometheus.Histogram
}

func NewVendorAuditor(db *reform.DB) *VendorAuditor {
	a := &VendorAuditor{
		db:       db,
		toInsert: make(chan *VendorCall, toInsertCap),
		l:        zap.L().Named("auditor"),
		mInsertLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_insert_len",
			Help: "Length of internal insert channel.",
		}),
		mInsertCap: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_insert_cap",
			Help: "Capacity of internal insert channel.",
		}),
		mDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditor_dropped_total",
			Help: "Vendor calls not audited because the insert channel was full.",
		}),
		mCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airtime_vendor_calls_total",
			Help: "Outbound vendor API calls.",
		}, []string{"vendor", "path", "code"}),
		mInsertSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_insert_size_rows",
			Help:    "Size of a single batch insert.",
			Buckets: prometheus.ExponentialBuckets(maxBatch/32, 2, 6),
		}),
		mInsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_insert_duration_seconds",
			Help:    "Duration of a single batch insert.",
			Buckets: prometheus.ExponentialBuckets(maxBatchDelay.Seconds()/32, 2, 5),
		}),
	}

	a.l.Info("Started.")
	a.wg.Add(1)
	go a.runInserter()
	return a
}

// Stop flushes pending calls. LogCall must not be called after Stop.
func (a *VendorAuditor) Stop() {
	a.stopOnce.Do(func() {
		close(a.toInsert)
		a.wg.Wait()
		a.l.Info("Stopped.")
	})
}

func (a *VendorAuditor) LogCall(ctx context.Context, c provider.Call) {
	code := "error"
	if c.StatusCode != 0 {
		code = statusClass(c.StatusCode)
	}
	a.mCalls.WithLabelValues(string(c.Vendor), c.Path, code).Inc()

	m := &VendorCall{
		Vendor:     string(c.Vendor),
		Method:     c.Method,
		Path:       c.Path,
		StatusCode: int64(c.StatusCode),
		DurationMS: c.Duration.Milliseconds(),
		RequestID:  httputils.GetRequestInfo(ctx).RequestID,
		CreatedAt:  time.Now().UTC(),
	}
	if c.Err != nil {
		m.Error = c.Err.Error()
		if len(m.Error) > maxErrorLen {
			m.Error = m.Error[:maxErrorLen]
		}
	}

	select {
	case a.toInsert <- m:
	default:
		a.mDropped.Inc()
		a.l.Warn("Audit channel is full, vendor call dropped.",
			zap.String("vendor", m.Vendor),
			zap.String("path", m.Path),
			zap.String("request_id", m.RequestID),
		)
	}
}

func (a *VendorAuditor) runInserter() {
	defer a.wg.Done()
	t := time.NewTicker(maxBatchDelay)
	defer t.Stop()

	var exit bool
	for !exit {
		// collect batch up to maxBatch messages and up to maxBatchDelay seconds
		messages := make([]reform.Struct, 0, maxBatch)
		var insert bool
		for !insert {
			select {
			case m, ok := <-a.toInsert:
				if !ok {
					exit = true
					insert = true
					break
				}

				messages = append(messages, m)
				if len(messages) == maxBatch {
					insert = true
				}

			case <-t.C:
				insert = true
			}
		}
		if len(messages) > 0 {
			a.insertBatch(messages)
		}
	}
}

func (a *VendorAuditor) insertBatch(messages []reform.Struct) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer func() {
		cancel()
		d := time.Since(start)
		a.mInsertSize.Observe(float64(len(messages)))
		a.mInsertDuration.Observe(d.Seconds())
		a.l.Debug("Vendor calls inserted.", zap.Int("count", len(messages)), zap.Duration("duration", d))
	}()
	if err := a.db.WithContext(ctx).InsertMulti(messages...); err != nil {
		a.l.Error("Failed to insert vendor calls.", zap.Int("count", len(messages)), zap.Error(err))
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func (a *VendorAuditor) Describe(ch chan<- *prometheus.Desc) {
	a.mInsertLen.Describe(ch)
	a.mInsertCap.Describe(ch)
	a.mDropped.Describe(ch)
	a.mCalls.Describe(ch)
	a.mInsertSize.Describe(ch)
	a.mInsertDuration.Describe(ch)
}

func (a *VendorAuditor) Collect(ch chan<- prometheus.Metric) {
	a.mInsertLen.Set(float64(len(a.toInsert)))
	a.mInsertCap.Set(float64(cap(a.toInsert)))

	a.mInsertLen.Collect(ch)
	a.mInsertCap.Collect(ch)
	a.mDropped.Collect(ch)
	a.mCalls.Collect(ch)
	a.mInsertSize.Collect(ch)
	a.mInsertDuration.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*VendorAuditor)(nil)
	_ provider.Auditor     = (*VendorAuditor)(nil)
)
