package item

import (
	"context"
	"math"
	"strings"

	"github.com/koustreak/relicmart/internal/connmgr"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/logger"
	"github.com/koustreak/relicmart/internal/schema"
	"github.com/koustreak/relicmart/internal/validate"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// ErrUnavailable is returned by every Repository method while no database
// configuration is active.
var ErrUnavailable = errs.New(errs.ErrKindUnavailable, "Database connection not available")

// StateSource hands out the active configuration. *connmgr.Manager is one.
type StateSource interface {
	Active() *connmgr.State
}

// ListOptions narrows and pages List. The zero value lists everything.
type ListOptions struct {
	// Query is a case-insensitive substring matched against name, type,
	// base item, rarity, source and requirements.
	Query    string   `json:"q"`
	Rarities []string `json:"rarity"`
	MinPrice *float64 `json:"minPrice" validate:"omitempty,gte=0"`
	MaxPrice *float64 `json:"maxPrice" validate:"omitempty,gte=0"`
	// Page is 1-based. Paging applies when Page or PageSize is set.
	Page     int `json:"page" validate:"gte=0"`
	PageSize int `json:"pageSize" validate:"gte=0"`
}

func (o ListOptions) normalize() (ListOptions, error) {
	if err := validate.Struct(o); err != nil {
		return o, err
	}
	if o.MinPrice != nil && o.MaxPrice != nil && *o.MinPrice > *o.MaxPrice {
		return o, errs.New(errs.ErrKindValidation, "minPrice must not exceed maxPrice")
	}
	o.Query = strings.TrimSpace(o.Query)
	if o.Page > 0 || o.PageSize > 0 {
		if o.Page == 0 {
			o.Page = 1
		}
		if o.PageSize == 0 {
			o.PageSize = DefaultPageSize
		}
		if o.PageSize > MaxPageSize {
			o.PageSize = MaxPageSize
		}
		if o.Page-1 > math.MaxInt/o.PageSize {
			return o, errs.New(errs.ErrKindValidation, "page is too large")
		}
	}
	return o, nil
}

func (o ListOptions) paged() bool { return o.PageSize > 0 }

// Repository runs item queries. It holds no pool or table of its own: each
// call reads the active state once and uses that snapshot throughout, so a
// concurrent reconfiguration never splits one call across two databases.
type Repository struct {
	src StateSource
	log *logger.Logger
}

// NewRepository returns a Repository reading state from src.
func NewRepository(src StateSource, log *logger.Logger) *Repository {
	if log == nil {
		log = logger.Nop()
	}
	return &Repository{src: src, log: log.Component("item")}
}

func (r *Repository) state() (*connmgr.State, error) {
	s := r.src.Active()
	if s == nil {
		return nil, ErrUnavailable
	}
	return s, nil
}

// List returns matching items newest first, plus the number of matches
// before paging.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Item, int, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, 0, err
	}
	s, err := r.state()
	if err != nil {
		return nil, 0, err
	}

	sel := database.Select(s.Table, s.Dialect).
		Columns(selectColumns...).
		WhereSearch(opts.Query, searchColumns...).
		WhereIn(schema.ColRarity, toAny(opts.Rarities)...)
	if opts.MinPrice != nil {
		sel.Where(schema.ColPrice, ">=", *opts.MinPrice)
	}
	if opts.MaxPrice != nil {
		sel.Where(schema.ColPrice, "<=", *opts.MaxPrice)
	}
	sel.OrderBy(schema.ColCreatedAt, database.Desc).OrderBy(schema.ColID, database.Desc)

	total := -1
	if opts.paged() {
		countSQL, countArgs, err := sel.BuildCount()
		if err != nil {
			return nil, 0, err
		}
		if err := s.Pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return nil, 0, r.fail(s, err, "counting items")
		}
		sel.Limit(opts.PageSize).Offset((opts.Page - 1) * opts.PageSize)
	}

	query, args, err := sel.Build()
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, r.fail(s, err, "listing items")
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, r.fail(s, err, "reading item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.fail(s, err, "listing items")
	}

	if total < 0 {
		total = len(items)
	}
	return items, total, nil
}

// Get returns one item.
func (r *Repository) Get(ctx context.Context, id int64) (Item, error) {
	s, err := r.state()
	if err != nil {
		return Item{}, err
	}
	return r.get(ctx, s, id)
}

func (r *Repository) get(ctx context.Context, s *connmgr.State, id int64) (Item, error) {
	if id < 1 {
		return Item{}, notFound(id)
	}
	query, args, err := database.Select(s.Table, s.Dialect).
		Columns(selectColumns...).
		Where(schema.ColID, "=", id).
		Build()
	if err != nil {
		return Item{}, err
	}
	it, err := scanItem(s.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errs.IsNotFound(err) {
			return Item{}, notFound(id)
		}
		return Item{}, r.fail(s, err, "reading item")
	}
	return it, nil
}

// Create inserts a new item. type, name, price, baseItem, rarity and
// source are required; id and timestamps are assigned by the database.
func (r *Repository) Create(ctx context.Context, f Fields) (Item, error) {
	as, err := f.assignments()
	if err != nil {
		return Item{}, err
	}
	if err := checkRequired(as); err != nil {
		return Item{}, err
	}
	s, err := r.state()
	if err != nil {
		return Item{}, err
	}

	ins := database.Insert(s.Table, s.Dialect).Returning(selectColumns...)
	for _, a := range as {
		ins.Set(a.column, a.value)
	}
	query, args, err := ins.Build()
	if err != nil {
		return Item{}, err
	}

	if s.Dialect.SupportsReturning() {
		it, err := scanItem(s.Pool.QueryRow(ctx, query, args...))
		if err != nil {
			return Item{}, r.fail(s, err, "creating item")
		}
		return it, nil
	}

	res, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return Item{}, r.fail(s, err, "creating item")
	}
	return r.get(ctx, s, res.LastInsertID)
}

// Update sets only the keys present in f and always refreshes Updated_At.
// An empty f still touches the row.
func (r *Repository) Update(ctx context.Context, id int64, f Fields) (Item, error) {
	as, err := f.assignments()
	if err != nil {
		return Item{}, err
	}
	s, err := r.state()
	if err != nil {
		return Item{}, err
	}
	if id < 1 {
		return Item{}, notFound(id)
	}

	upd := database.Update(s.Table, s.Dialect)
	for _, a := range as {
		upd.Set(a.column, a.value)
	}
	upd.Touch(schema.ColUpdatedAt).
		Where(schema.ColID, "=", id).
		Returning(selectColumns...)
	query, args, err := upd.Build()
	if err != nil {
		return Item{}, err
	}

	if s.Dialect.SupportsReturning() {
		it, err := scanItem(s.Pool.QueryRow(ctx, query, args...))
		if err != nil {
			if errs.IsNotFound(err) {
				return Item{}, notFound(id)
			}
			return Item{}, r.fail(s, err, "updating item")
		}
		return it, nil
	}

	res, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return Item{}, r.fail(s, err, "updating item")
	}
	if res.RowsAffected == 0 {
		return Item{}, notFound(id)
	}
	return r.get(ctx, s, id)
}

// Delete removes one item.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	s, err := r.state()
	if err != nil {
		return err
	}
	if id < 1 {
		return notFound(id)
	}
	query, args, err := database.Delete(s.Table, s.Dialect).
		Where(schema.ColID, "=", id).
		Build()
	if err != nil {
		return err
	}
	res, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return r.fail(s, err, "deleting item")
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

func notFound(id int64) error {
	return errs.Newf(errs.ErrKindNotFound, "item %d not found", id)
}

// fail keeps the backend's classification (timeout, connection, query)
// and adds what the repository was doing.
func (r *Repository) fail(s *connmgr.State, err error, msg string) error {
	kind := errs.KindOf(err)
	if kind == errs.ErrKindUnknown {
		kind = errs.ErrKindQueryFailed
	}
	r.log.With().Str("table", s.Table).Err(err).Logger().Error(msg)
	return errs.Wrap(kind, msg, err)
}

func toAny(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
