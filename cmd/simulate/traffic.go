package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type fixtures struct {
	patients []uuid.UUID
	doctors  []string
	dates    []string
}

func loadFixtures(ctx context.Context, pool *pgxpool.Pool, opts options) (*fixtures, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, opts.patients)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	patients, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	// few doctors keeps contention on the same slots high
	rows, err = pool.Query(ctx, `SELECT slug FROM doctors WHERE is_published ORDER BY slug LIMIT $1`, opts.doctors)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	doctors, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(patients) == 0 || len(doctors) == 0 {
		return nil, fmt.Errorf("database has %d patients and %d published doctors; run cmd/seed first", len(patients), len(doctors))
	}

	fx := &fixtures{patients: patients, doctors: doctors}
	today := time.Now().UTC()
	for i := 1; i <= opts.days; i++ {
		fx.dates = append(fx.dates, today.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return fx, nil
}

// counter tallies one kind of request.
type counter struct {
	total, ok, conflict, failed atomic.Int64
	latencyNanos, maxNanos      atomic.Int64
}

func (c *counter) observe(d time.Duration, status int, err error) {
	c.total.Add(1)
	switch {
	case err != nil:
		c.failed.Add(1)
	case status == http.StatusConflict:
		c.conflict.Add(1)
	case status < 300:
		c.ok.Add(1)
	default:
		c.failed.Add(1)
	}

	n := d.Nanoseconds()
	c.latencyNanos.Add(n)
	for {
		cur := c.maxNanos.Load()
		if n <= cur || c.maxNanos.CompareAndSwap(cur, n) {
			return
		}
	}
}

type booking struct {
	id      uuid.UUID
	patient uuid.UUID
	slot    string
}

// slotLedger remembers every booking the API accepted so a run can be
// checked for slots that ended up with two live appointments.
type slotLedger struct {
	mu        sync.Mutex
	bookings  []booking
	cancelled map[uuid.UUID]bool
}

func (l *slotLedger) add(b booking) {
	l.mu.Lock()
	l.bookings = append(l.bookings, b)
	l.mu.Unlock()
}

func (l *slotLedger) pick(rng *rand.Rand) (booking, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.bookings) == 0 {
		return booking{}, false
	}
	return l.bookings[rng.Intn(len(l.bookings))], true
}

func (l *slotLedger) cancel(id uuid.UUID) {
	l.mu.Lock()
	l.cancelled[id] = true
	l.mu.Unlock()
}

func (l *slotLedger) doubleBooked(log *zap.Logger) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := make(map[string]int)
	for _, b := range l.bookings {
		if !l.cancelled[b.id] {
			live[b.slot]++
		}
	}

	n := 0
	for slot, count := range live {
		if count > 1 {
			log.Error("slot booked more than once", zap.String("slot", slot), zap.Int("live", count))
			n++
		}
	}
	return n
}

type simulator struct {
	opts   options
	fx     *fixtures
	client *http.Client
	log    *zap.Logger
	ledger *slotLedger

	book, cancel, availability, read counter
}

func newSimulator(opts options, fx *fixtures, log *zap.Logger) *simulator {
	return &simulator{
		opts:   opts,
		fx:     fx,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		ledger: &slotLedger{cancelled: make(map[uuid.UUID]bool)},
	}
}

func (s *simulator) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.opts.workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				s.step(ctx, rng)
			}
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()
}

func (s *simulator) step(ctx context.Context, rng *rand.Rand) {
	n := rng.Intn(s.opts.bookWeight + s.opts.cancelWeight + s.opts.readWeight)
	switch {
	case n < s.opts.bookWeight:
		s.bookEarliest(ctx, rng)
	case n < s.opts.bookWeight+s.opts.cancelWeight:
		s.cancelRandom(ctx, rng)
	case rng.Intn(2) == 0:
		doctor, date := s.pickSlotDay(rng)
		start := time.Now()
		_, status, err := s.slots(ctx, doctor, date)
		s.availability.observe(time.Since(start), status, err)
	default:
		b, ok := s.ledger.pick(rng)
		if !ok {
			return
		}
		start := time.Now()
		status, err := s.send(ctx, http.MethodGet, "/appointments/"+b.id.String(), b.patient, nil, nil)
		s.read.observe(time.Since(start), status, err)
	}
}

func (s *simulator) pickSlotDay(rng *rand.Rand) (string, string) {
	return s.fx.doctors[rng.Intn(len(s.fx.doctors))], s.fx.dates[rng.Intn(len(s.fx.dates))]
}

// bookEarliest races for the first free slot, the way most patients do.
func (s *simulator) bookEarliest(ctx context.Context, rng *rand.Rand) {
	doctor, date := s.pickSlotDay(rng)
	patient := s.fx.patients[rng.Intn(len(s.fx.patients))]

	free, status, err := s.slots(ctx, doctor, date)
	if err != nil || status != http.StatusOK || len(free) == 0 {
		return
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err = s.send(ctx, http.MethodPost, "/doctors/"+doctor+"/appointments", patient,
		map[string]string{"date": date, "time": free[0]}, &created)
	s.book.observe(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated && created.ID != uuid.Nil {
		s.ledger.add(booking{id: created.ID, patient: patient, slot: doctor + "|" + date + "|" + free[0]})
	}
}

func (s *simulator) cancelRandom(ctx context.Context, rng *rand.Rand) {
	b, ok := s.ledger.pick(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.send(ctx, http.MethodPost, "/appointments/"+b.id.String()+"/cancel", b.patient, nil, nil)
	s.cancel.observe(time.Since(start), status, err)

	if err == nil && status == http.StatusOK {
		s.ledger.cancel(b.id)
	}
}

func (s *simulator) slots(ctx context.Context, doctor, date string) ([]string, int, error) {
	var body struct {
		Slots []string `json:"slots"`
	}
	status, err := s.send(ctx, http.MethodGet, "/doctors/"+doctor+"/availability?date="+date, uuid.Nil, nil, &body)
	return body.Slots, status, err
}

// send issues one request as the given patient. out is decoded only on 2xx.
func (s *simulator) send(ctx context.Context, method, path string, actor uuid.UUID, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.opts.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != uuid.Nil {
		req.Header.Set("X-Actor-ID", actor.String())
		req.Header.Set("X-Actor-Role", "patient")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *simulator) report(w io.Writer) {
	fmt.Fprintf(w, "\nsimulation: %s with %d workers against %s\n\n", s.opts.duration, s.opts.workers, s.opts.baseURL)
	fmt.Fprintf(w, "%-14s %8s %8s %9s %7s %10s %10s\n", "operation", "total", "ok", "conflict", "failed", "avg", "max")

	for _, row := range []struct {
		name string
		c    *counter
	}{
		{"book", &s.book},
		{"cancel", &s.cancel},
		{"availability", &s.availability},
		{"read", &s.read},
	} {
		total := row.c.total.Load()
		var avg time.Duration
		if total > 0 {
			avg = time.Duration(row.c.latencyNanos.Load() / total)
		}
		fmt.Fprintf(w, "%-14s %8d %8d %9d %7d %10s %10s\n",
			row.name, total, row.c.ok.Load(), row.c.conflict.Load(), row.c.failed.Load(),
			avg.Round(time.Microsecond), time.Duration(row.c.maxNanos.Load()).Round(time.Microsecond))
	}

	s.ledger.mu.Lock()
	fmt.Fprintf(w, "\nbookings accepted: %d, cancelled: %d\n", len(s.ledger.bookings), len(s.ledger.cancelled))
	s.ledger.mu.Unlock()
}
