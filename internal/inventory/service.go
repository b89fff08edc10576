package inventory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samplyze/samplyze/internal/shared"
)

// csvHeader is both the export header and the accepted import header.
var csvHeader = []string{"SKU", "Name", "Category", "Quantity", "Unit", "Location"}

// Service coordinates inventory operations.
type Service struct {
	repo  *Repository
	clock *shared.Clock
}

// NewService builds a Service instance.
func NewService(repo *Repository, clock *shared.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// List returns all items.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	return s.repo.Get(ctx, id)
}

// Create adds an item.
func (s *Service) Create(ctx context.Context, in ItemInput) (int64, error) {
	if err := normalize(&in); err != nil {
		return 0, err
	}
	return s.repo.Create(ctx, in, s.clock.Now())
}

// Update rewrites an item.
func (s *Service) Update(ctx context.Context, id int64, in ItemInput) error {
	if err := normalize(&in); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, in, s.clock.Now())
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// ExportCSV streams all items as CSV.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	items, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("inventory: write csv header: %w", err)
	}
	for _, item := range items {
		row := []string{item.SKU, item.Name, item.Category,
			strconv.Itoa(item.Quantity), item.Unit, item.Location}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("inventory: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportCSV upserts items by SKU from a CSV stream. Bad rows are
// skipped and reported; the import itself keeps going.
func (s *Service) ImportCSV(ctx context.Context, rd io.Reader) (ImportStats, error) {
	stats := ImportStats{}
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("inventory: read csv header: %w", err)
	}
	cols := headerIndex(header)
	if _, ok := cols["sku"]; !ok {
		return stats, fmt.Errorf("inventory: csv missing SKU column")
	}

	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		in, err := rowToInput(record, cols)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		created, err := s.upsert(ctx, in)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
	return stats, nil
}

func (s *Service) upsert(ctx context.Context, in ItemInput) (created bool, err error) {
	existing, err := s.repo.GetBySKU(ctx, in.SKU)
	if errors.Is(err, shared.ErrNotFound) {
		_, err := s.repo.Create(ctx, in, s.clock.Now())
		return true, err
	}
	if err != nil {
		return false, err
	}
	return false, s.repo.Update(ctx, existing.ID, in, s.clock.Now())
}

func normalize(in *ItemInput) error {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" {
		return ErrMissingSKU
	}
	if in.Name == "" {
		return fmt.Errorf("inventory: name required")
	}
	if in.Quantity < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func rowToInput(record []string, cols map[string]int) (ItemInput, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	in := ItemInput{
		SKU:      field("sku"),
		Name:     field("name"),
		Category: field("category"),
		Unit:     field("unit"),
		Location: field("location"),
	}
	if raw := field("quantity"); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return ItemInput{}, fmt.Errorf("bad quantity %q", raw)
		}
		in.Quantity = qty
	}
	if err := normalize(&in); err != nil {
		return ItemInput{}, err
	}
	return in, nil
}
