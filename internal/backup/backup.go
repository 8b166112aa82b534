// Package backup writes and restores zstd-compressed JSON snapshots of a
// repository's tickets, ledger entries and counters.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/store"
)

const formatVersion = 1

var (
	epoch   = time.Unix(0, 0).UTC()
	horizon = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

type Snapshot struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	Tickets    []domain.Ticket  `json:"tickets"`
	Sales      []domain.Sale    `json:"sales"`
	Expenses   []domain.Expense `json:"expenses"`
	Counters   []domain.Counter `json:"counters"`
}

// Stats counts what Import wrote. Records that already exist are skipped.
type Stats struct {
	Tickets  int
	Sales    int
	Expenses int
	Counters int
	Skipped  int
}

type Source interface {
	ListTickets(ctx context.Context, filter store.TicketFilter) ([]domain.Ticket, error)
	ListSales(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Sale, error)
	ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error)
	ListCounters(ctx context.Context) ([]domain.Counter, error)
}

type Target interface {
	CreateTicket(ctx context.Context, ticket domain.Ticket) (*domain.Ticket, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	RaiseCounter(ctx context.Context, name string, value int64) error
}

// CounterStore holds counters outside the repository, such as the redis
// ticket sequence.
type CounterStore interface {
	Current(ctx context.Context, name string) (int64, error)
	RaiseCounter(ctx context.Context, name string, value int64) error
}

// WithCounterStore makes src report the higher of its own and ext's value
// for each named counter.
func WithCounterStore(src Source, ext CounterStore, names ...string) Source {
	return overlaySource{Source: src, ext: ext, names: names}
}

type overlaySource struct {
	Source
	ext   CounterStore
	names []string
}

func (o overlaySource) ListCounters(ctx context.Context) ([]domain.Counter, error) {
	counters, err := o.Source.ListCounters(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range o.names {
		value, err := o.ext.Current(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read counter %s: %w", name, err)
		}
		found := false
		for i := range counters {
			if counters[i].Name == name {
				found = true
				if value > counters[i].CurrentValue {
					counters[i].CurrentValue = value
				}
			}
		}
		if !found {
			counters = append(counters, domain.Counter{Name: name, CurrentValue: value})
		}
	}
	return counters, nil
}

// MirrorCounters makes restored counters raise ext as well as dst.
func MirrorCounters(dst Target, ext CounterStore) Target {
	return mirrorTarget{Target: dst, ext: ext}
}

type mirrorTarget struct {
	Target
	ext CounterStore
}

func (m mirrorTarget) RaiseCounter(ctx context.Context, name string, value int64) error {
	if err := m.Target.RaiseCounter(ctx, name, value); err != nil {
		return err
	}
	return m.ext.RaiseCounter(ctx, name, value)
}

func Export(ctx context.Context, src Source, w io.Writer) (Snapshot, error) {
	snap := Snapshot{Version: formatVersion, ExportedAt: time.Now().UTC()}

	var err error
	if snap.Tickets, err = src.ListTickets(ctx, store.TicketFilter{}); err != nil {
		return snap, fmt.Errorf("list tickets: %w", err)
	}
	if snap.Sales, err = src.ListSales(ctx, "", epoch, horizon); err != nil {
		return snap, fmt.Errorf("list sales: %w", err)
	}
	if snap.Expenses, err = src.ListExpenses(ctx, "", epoch, horizon); err != nil {
		return snap, fmt.Errorf("list expenses: %w", err)
	}
	if snap.Counters, err = src.ListCounters(ctx); err != nil {
		return snap, fmt.Errorf("list counters: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return snap, err
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		_ = enc.Close()
		return snap, fmt.Errorf("encode snapshot: %w", err)
	}
	return snap, enc.Close()
}

func Read(r io.Reader) (Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, err
	}
	defer dec.Close()

	var snap Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != formatVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported snapshot version %d", store.ErrValidation, snap.Version)
	}
	return snap, nil
}

// Import restores a snapshot into dst. Counters are raised to at least the
// snapshot value so restored ticket numbers are never reissued.
func Import(ctx context.Context, dst Target, r io.Reader) (Stats, error) {
	var stats Stats
	snap, err := Read(r)
	if err != nil {
		return stats, err
	}

	for _, ticket := range snap.Tickets {
		if _, err := dst.CreateTicket(ctx, ticket); err != nil {
			if errors.Is(err, store.ErrConflict) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("restore ticket %s: %w", ticket.TicketNumber, err)
		}
		stats.Tickets++
	}
	for _, sale := range snap.Sales {
		if _, err := dst.CreateSale(ctx, sale); err != nil {
			if errors.Is(err, store.ErrConflict) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("restore sale %s: %w", sale.ID, err)
		}
		stats.Sales++
	}
	for _, expense := range snap.Expenses {
		if _, err := dst.CreateExpense(ctx, expense); err != nil {
			if errors.Is(err, store.ErrConflict) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("restore expense %s: %w", expense.ID, err)
		}
		stats.Expenses++
	}
	for _, counter := range snap.Counters {
		if err := dst.RaiseCounter(ctx, counter.Name, counter.CurrentValue); err != nil {
			return stats, fmt.Errorf("restore counter %s: %w", counter.Name, err)
		}
		stats.Counters++
	}
	return stats, nil
}
