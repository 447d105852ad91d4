package analytics

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"gorm.io/gorm"

	"factory-floor-backend/internal/model"
)

// OEEReport is the full efficiency picture for a window, optionally scoped
// to a single machine.
type OEEReport struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	MachineID       *int64    `json:"machine_id,omitempty"`
	MachineCount    int       `json:"machine_count"`
	PlannedMinutes  float64   `json:"planned_minutes"`
	DowntimeMinutes float64   `json:"downtime_minutes"`
	RunMinutes      float64   `json:"run_minutes"`
	AvailabilityPct float64   `json:"availability_pct"`
	PerformancePct  float64   `json:"performance_pct"`
	QualityPct      float64   `json:"quality_pct"`
	OEEPct          float64   `json:"oee_pct"`
	MTBFMinutes     float64   `json:"mtbf_minutes"`
	MTTRMinutes     float64   `json:"mttr_minutes"`
	OrdersCompleted int       `json:"orders_completed"`
	Incidents       int       `json:"incidents"`
	Trend           string    `json:"trend"`
}

// ReasonCount is one entry of the top-reasons breakdown.
type ReasonCount struct {
	Reason  string  `json:"reason"`
	Count   int     `json:"count"`
	Minutes float64 `json:"minutes"`
}

// DowntimeSummary aggregates the ledger over a window.
type DowntimeSummary struct {
	From           time.Time          `json:"from"`
	To             time.Time          `json:"to"`
	TotalEvents    int                `json:"total_events"`
	TotalMinutes   float64            `json:"total_minutes"`
	OpenEvents     int                `json:"open_events"`
	ResolvedEvents int                `json:"resolved_events"`
	ByCategory     map[string]float64 `json:"by_category"`
	BySeverity     map[string]float64 `json:"by_severity"`
	TopReasons     []ReasonCount      `json:"top_reasons"`
	MTBFMinutes    float64            `json:"mtbf_minutes"`
	MTTRMinutes    float64            `json:"mttr_minutes"`
}

// Service answers report queries straight from the database. It never writes.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// OEE computes the report for the window, plus the trend against the
// equal-length window immediately before it.
func (s *Service) OEE(ctx context.Context, w Window, machineID *int64) (*OEEReport, error) {
	cur, err := s.compute(ctx, w, machineID)
	if err != nil {
		return nil, err
	}
	prev, err := s.compute(ctx, w.Previous(), machineID)
	if err != nil {
		return nil, err
	}
	cur.Trend = Trend(cur.OEEPct, prev.OEEPct)
	return cur, nil
}

func (s *Service) compute(ctx context.Context, w Window, machineID *int64) (*OEEReport, error) {
	rep := &OEEReport{From: w.From, To: w.To, MachineID: machineID}

	machines := s.db.WithContext(ctx).Model(&model.Machine{})
	if machineID != nil {
		machines = machines.Where("id = ?", *machineID)
	}
	var machineCount int64
	if err := machines.Count(&machineCount).Error; err != nil {
		return nil, queryErr(err, "count machines")
	}
	rep.MachineCount = int(machineCount)
	rep.PlannedMinutes = w.Minutes() * float64(machineCount)

	downtime, incidents, resolved, err := s.downtimeTotals(ctx, w, machineID)
	if err != nil {
		return nil, err
	}
	rep.DowntimeMinutes = downtime
	rep.Incidents = incidents

	// Orders that overlap the window. Cancelled orders carry no completion
	// timestamp to bound their span, so they stay out of the run total.
	orders := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("start_time IS NOT NULL AND start_time < ?", w.To).
		Where("complete_time IS NULL OR complete_time >= ?", w.From).
		Where("status <> ?", model.OrderCancelled)
	if machineID != nil {
		orders = orders.Where("machine_id = ?", *machineID)
	}
	var rows []model.Order
	if err := orders.Find(&rows).Error; err != nil {
		return nil, queryErr(err, "load orders")
	}

	var sumActual, sumTarget float64
	for _, o := range rows {
		end := w.To
		if o.CompleteTime != nil {
			end = *o.CompleteTime
		}
		rep.RunMinutes += overlapMinutes(*o.StartTime, end, w)
		if o.Status == model.OrderCompleted && o.CompleteTime != nil && inWindow(*o.CompleteTime, w) {
			rep.OrdersCompleted++
			if o.ActualQuantity != nil {
				sumActual += float64(*o.ActualQuantity)
			}
			sumTarget += float64(o.TargetQuantity)
		}
	}

	a := Availability(rep.PlannedMinutes, rep.DowntimeMinutes)
	p := Performance(rep.RunMinutes, rep.PlannedMinutes, rep.DowntimeMinutes)
	q := Quality(sumActual, sumTarget)
	rep.AvailabilityPct = a * 100
	rep.PerformancePct = p * 100
	rep.QualityPct = q * 100
	rep.OEEPct = OEE(a, p, q) * 100
	rep.MTBFMinutes = MTBF(w.Minutes(), incidents)
	rep.MTTRMinutes = MTTR(downtime, resolved)
	return rep, nil
}

// Downtime aggregates ledger entries whose start falls inside the window.
func (s *Service) Downtime(ctx context.Context, w Window) (*DowntimeSummary, error) {
	sum := &DowntimeSummary{
		From:       w.From,
		To:         w.To,
		ByCategory: make(map[string]float64),
		BySeverity: make(map[string]float64),
		TopReasons: []ReasonCount{},
	}

	type aggRow struct {
		Label   string
		Count   int
		Minutes float64
	}

	var byStatus []aggRow
	if err := s.window(ctx, w).
		Select("resolution_status as label, COUNT(*) as count, COALESCE(SUM(duration_minutes), 0) as minutes").
		Group("resolution_status").
		Scan(&byStatus).Error; err != nil {
		return nil, queryErr(err, "aggregate downtime by status")
	}
	for _, r := range byStatus {
		sum.TotalEvents += r.Count
		sum.TotalMinutes += r.Minutes
		if r.Label == model.ResolutionResolved {
			sum.ResolvedEvents += r.Count
		} else {
			sum.OpenEvents += r.Count
		}
	}

	var byCategory []aggRow
	if err := s.window(ctx, w).
		Select("category as label, COALESCE(SUM(duration_minutes), 0) as minutes").
		Group("category").
		Scan(&byCategory).Error; err != nil {
		return nil, queryErr(err, "aggregate downtime by category")
	}
	for _, r := range byCategory {
		sum.ByCategory[r.Label] = r.Minutes
	}

	var bySeverity []aggRow
	if err := s.window(ctx, w).
		Select("severity as label, COALESCE(SUM(duration_minutes), 0) as minutes").
		Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return nil, queryErr(err, "aggregate downtime by severity")
	}
	for _, r := range bySeverity {
		sum.BySeverity[r.Label] = r.Minutes
	}

	var byReason []aggRow
	if err := s.window(ctx, w).
		Select("reason as label, COUNT(*) as count, COALESCE(SUM(duration_minutes), 0) as minutes").
		Group("reason").
		Scan(&byReason).Error; err != nil {
		return nil, queryErr(err, "aggregate downtime by reason")
	}
	sort.Slice(byReason, func(i, j int) bool {
		if byReason[i].Count != byReason[j].Count {
			return byReason[i].Count > byReason[j].Count
		}
		return byReason[i].Minutes > byReason[j].Minutes
	})
	for i, r := range byReason {
		if i == topReasonLimit {
			break
		}
		sum.TopReasons = append(sum.TopReasons, ReasonCount{Reason: r.Label, Count: r.Count, Minutes: r.Minutes})
	}

	sum.MTBFMinutes = MTBF(w.Minutes(), sum.TotalEvents)
	sum.MTTRMinutes = MTTR(sum.TotalMinutes, sum.ResolvedEvents)
	return sum, nil
}

const topReasonLimit = 5

// window scopes ledger queries to [From, To). The column is qualified because
// downtimeTotals joins production_orders, which has a start_time of its own.
func (s *Service) window(ctx context.Context, w Window) *gorm.DB {
	return s.db.WithContext(ctx).Model(&model.DowntimeEvent{}).
		Where("downtime_events.start_time >= ? AND downtime_events.start_time < ?", w.From, w.To)
}

func (s *Service) downtimeTotals(ctx context.Context, w Window, machineID *int64) (minutes float64, incidents, resolved int, err error) {
	type aggRow struct {
		Label   string
		Count   int
		Minutes float64
	}
	q := s.window(ctx, w).
		Select("downtime_events.resolution_status as label, COUNT(*) as count, COALESCE(SUM(downtime_events.duration_minutes), 0) as minutes").
		Group("downtime_events.resolution_status")
	if machineID != nil {
		q = q.Joins("JOIN production_orders ON production_orders.id = downtime_events.order_id").
			Where("production_orders.machine_id = ?", *machineID)
	}
	var rows []aggRow
	if err := q.Scan(&rows).Error; err != nil {
		return 0, 0, 0, queryErr(err, "aggregate downtime")
	}
	for _, r := range rows {
		minutes += r.Minutes
		incidents += r.Count
		if r.Label == model.ResolutionResolved {
			resolved += r.Count
		}
	}
	return minutes, incidents, resolved, nil
}

func overlapMinutes(start, end time.Time, w Window) float64 {
	if start.Before(w.From) {
		start = w.From
	}
	if end.After(w.To) {
		end = w.To
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}

func inWindow(t time.Time, w Window) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

func queryErr(err error, message string) error {
	return apperrors.Wrap(err, apperrors.CategoryExternal, message)
}
