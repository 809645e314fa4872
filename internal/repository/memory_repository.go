package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"labdash/internal/models"
)

// MemoryRepository is an in-process MeasurementRepository. The importer uses
// it for dry runs; tests use its hooks to inject storage failures.
type MemoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	records []*models.Measurement
	now     func() time.Time

	// BeforeInsert, when set, runs before each insert; a non-nil error
	// aborts that insert.
	BeforeInsert func(m *models.Measurement) error
	// Down makes every call fail with StorageUnavailableError.
	Down bool
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

func (r *MemoryRepository) unavailable(op string) error {
	if r.Down {
		return &models.StorageUnavailableError{Op: op, Err: fmt.Errorf("memory repository is down")}
	}
	return nil
}

// Create stores a copy of m and assigns ID and CreatedAt
func (r *MemoryRepository) Create(ctx context.Context, m *models.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("insert measurement"); err != nil {
		return err
	}
	if r.BeforeInsert != nil {
		if err := r.BeforeInsert(m); err != nil {
			return err
		}
	}

	r.nextID++
	m.ID = r.nextID
	m.CreatedAt = r.now().UTC()

	stored := *m
	r.records = append(r.records, &stored)
	return nil
}

// Get returns one record
func (r *MemoryRepository) Get(ctx context.Context, category models.Category, id int64) (*models.Measurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("get measurement"); err != nil {
		return nil, err
	}
	for _, m := range r.records {
		if m.Category == category && m.ID == id {
			c := *m
			return &c, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "measurement", ID: fmt.Sprintf("%s:%d", category, id)}
}

func (r *MemoryRepository) matching(filter MeasurementFilter) []*models.Measurement {
	var out []*models.Measurement
	for _, m := range r.records {
		if m.Category != filter.Category {
			continue
		}
		if filter.Point != nil && m.Point != *filter.Point {
			continue
		}
		if filter.Parameter != nil && (m.Parameter == nil || *m.Parameter != *filter.Parameter) {
			continue
		}
		if filter.StartDate != nil && m.MeasuredOn.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && m.MeasuredOn.After(*filter.EndDate) {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return out
}

// List mirrors the ordering and pagination of the SQL repository
func (r *MemoryRepository) List(ctx context.Context, filter MeasurementFilter) ([]*models.Measurement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("list measurements"); err != nil {
		return nil, 0, err
	}

	out := r.matching(filter)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.MeasuredOn.Equal(b.MeasuredOn) {
			return a.MeasuredOn.Before(b.MeasuredOn) == filter.Ascending
		}
		return (a.ID < b.ID) == filter.Ascending
	})

	total := len(out)
	if filter.Limit > 0 {
		start := min(filter.Offset, total)
		end := min(start+filter.Limit, total)
		out = out[start:end]
	}
	if out == nil {
		out = make([]*models.Measurement, 0)
	}
	return out, total, nil
}

// Statistics computes count, mean, extremes and sample standard deviation
func (r *MemoryRepository) Statistics(ctx context.Context, filter MeasurementFilter) (*models.CategoryStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("calculate statistics"); err != nil {
		return nil, err
	}

	stats := &models.CategoryStatistics{Category: filter.Category}
	records := r.matching(filter)
	stats.Total = len(records)
	if stats.Total == 0 {
		return stats, nil
	}

	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, m := range records {
		sum += m.Value
		lo = math.Min(lo, m.Value)
		hi = math.Max(hi, m.Value)
	}
	mean := sum / float64(stats.Total)
	stats.Average, stats.Minimum, stats.Maximum = &mean, &lo, &hi

	if stats.Total > 1 {
		var sq float64
		for _, m := range records {
			sq += (m.Value - mean) * (m.Value - mean)
		}
		sd := math.Sqrt(sq / float64(stats.Total-1))
		stats.StandardDeviation = &sd
	}

	return stats, nil
}

// Delete removes one record
func (r *MemoryRepository) Delete(ctx context.Context, category models.Category, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("delete measurement"); err != nil {
		return err
	}
	for i, m := range r.records {
		if m.Category == category && m.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return &models.NotFoundError{Resource: "measurement", ID: fmt.Sprintf("%s:%d", category, id)}
}

// DeleteAll removes every record of a category
func (r *MemoryRepository) DeleteAll(ctx context.Context, category models.Category) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("clear category"); err != nil {
		return 0, err
	}
	kept := r.records[:0]
	var deleted int64
	for _, m := range r.records {
		if m.Category == category {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.records = kept
	return deleted, nil
}

// HealthCheck fails only when Down is set
func (r *MemoryRepository) HealthCheck(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unavailable("health check")
}

// Records returns copies of every stored record in insertion order
func (r *MemoryRepository) Records() []*models.Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Measurement, len(r.records))
	for i, m := range r.records {
		c := *m
		out[i] = &c
	}
	return out
}
