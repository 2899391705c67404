package repository

import (
	"context"
	"time"

	"github.com/crackzone/teams/internal/db"
	"github.com/crackzone/teams/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
)

type JoinRequest struct {
	ID         string                  `db:"id"`
	TeamID     string                  `db:"team_id"`
	TeamName   string                  `db:"team_name"`
	UserID     string                  `db:"user_id"`
	Username   string                  `db:"username"`
	Message    string                  `db:"message"`
	Status     model.JoinRequestStatus `db:"status"`
	CreatedAt  time.Time               `db:"created_at"`
	ResolvedAt *time.Time              `db:"resolved_at"`
}

type JoinRequestRepository interface {
	// Create fails with ErrAlreadyExists when the pair already has a pending request.
	Create(ctx context.Context, req *JoinRequest) error
	Get(ctx context.Context, id string) (*JoinRequest, error)
	Lock(ctx context.Context, id string) (*JoinRequest, error)
	// Resolve moves a pending request to status; ErrNotFound if it is not pending.
	Resolve(ctx context.Context, id string, status model.JoinRequestStatus) (*JoinRequest, error)
	CancelPendingByUser(ctx context.Context, userID string) ([]*JoinRequest, error)
	CancelPendingByTeam(ctx context.Context, teamID string) ([]*JoinRequest, error)
	ListPendingByTeam(ctx context.Context, teamID string) ([]*JoinRequest, error)
	ListPendingByUser(ctx context.Context, userID string) ([]*JoinRequest, error)
}

var joinRequestColumns = []any{
	"r.id", "r.team_id", "t.name", "r.user_id", "u.username", "r.message", "r.status", "r.created_at", "r.resolved_at",
}

type pgxJoinRequestRepository struct {
	pool *pgxpool.Pool
}

func NewPgxJoinRequestRepository(pool *pgxpool.Pool) JoinRequestRepository {
	return &pgxJoinRequestRepository{pool: pool}
}

func scanJoinRequest(row pgx.Row) (*JoinRequest, error) {
	r := &JoinRequest{}
	if err := row.Scan(
		&r.ID,
		&r.TeamID,
		&r.TeamName,
		&r.UserID,
		&r.Username,
		&r.Message,
		&r.Status,
		&r.CreatedAt,
		&r.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *pgxJoinRequestRepository) Create(ctx context.Context, req *JoinRequest) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("join_request", "id", "team_id", "user_id", "message", "status"),
		im.Values(psql.Arg(req.ID), psql.Arg(req.TeamID), psql.Arg(req.UserID), psql.Arg(req.Message), psql.Arg(req.Status)),
		im.Returning("created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&req.CreatedAt)
	return translate(err)
}

func (p *pgxJoinRequestRepository) selectQuery(where bob.Expression) bob.BaseQuery[*dialect.SelectQuery] {
	return psql.Select(
		sm.Columns(joinRequestColumns...),
		sm.From("join_request").As("r"),
		sm.InnerJoin("team").As("t").On(psql.Quote("t", "id").EQ(psql.Quote("r", "team_id"))),
		sm.InnerJoin("users").As("u").On(psql.Quote("u", "id").EQ(psql.Quote("r", "user_id"))),
		sm.Where(where),
		sm.OrderBy("r.created_at").Asc(),
	)
}

func (p *pgxJoinRequestRepository) Get(ctx context.Context, id string) (*JoinRequest, error) {
	return p.getOne(ctx, id, false)
}

func (p *pgxJoinRequestRepository) Lock(ctx context.Context, id string) (*JoinRequest, error) {
	return p.getOne(ctx, id, true)
}

func (p *pgxJoinRequestRepository) getOne(ctx context.Context, id string, forUpdate bool) (*JoinRequest, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := p.selectQuery(psql.Quote("r", "id").EQ(psql.Arg(id)))
	if forUpdate {
		q.Apply(sm.ForUpdate("r"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	r, err := scanJoinRequest(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (p *pgxJoinRequestRepository) list(ctx context.Context, where bob.Expression) ([]*JoinRequest, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sql, args, err := p.selectQuery(where).Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*JoinRequest, error) {
		return scanJoinRequest(row)
	})
}

func (p *pgxJoinRequestRepository) ListPendingByTeam(ctx context.Context, teamID string) ([]*JoinRequest, error) {
	return p.list(ctx, psql.Quote("r", "team_id").EQ(psql.Arg(teamID)).
		And(psql.Quote("r", "status").EQ(psql.Arg(model.JoinRequestPending))))
}

func (p *pgxJoinRequestRepository) ListPendingByUser(ctx context.Context, userID string) ([]*JoinRequest, error) {
	return p.list(ctx, psql.Quote("r", "user_id").EQ(psql.Arg(userID)).
		And(psql.Quote("r", "status").EQ(psql.Arg(model.JoinRequestPending))))
}

func (p *pgxJoinRequestRepository) Resolve(ctx context.Context, id string, status model.JoinRequestStatus) (*JoinRequest, error) {
	resolved, err := p.resolveWhere(ctx, status, psql.Quote("id").EQ(psql.Arg(id)))
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, ErrNotFound
	}
	return p.Get(ctx, resolved[0])
}

func (p *pgxJoinRequestRepository) CancelPendingByUser(ctx context.Context, userID string) ([]*JoinRequest, error) {
	return p.cancelWhere(ctx, psql.Quote("user_id").EQ(psql.Arg(userID)))
}

func (p *pgxJoinRequestRepository) CancelPendingByTeam(ctx context.Context, teamID string) ([]*JoinRequest, error) {
	return p.cancelWhere(ctx, psql.Quote("team_id").EQ(psql.Arg(teamID)))
}

func (p *pgxJoinRequestRepository) cancelWhere(ctx context.Context, where bob.Expression) ([]*JoinRequest, error) {
	ids, err := p.resolveWhere(ctx, model.JoinRequestCancelled, where)
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	out := make([]*JoinRequest, 0, len(ids))
	for _, id := range ids {
		r, err := p.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// resolveWhere flips matching pending requests to status and returns their ids.
func (p *pgxJoinRequestRepository) resolveWhere(ctx context.Context, status model.JoinRequestStatus, where bob.Expression) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("join_request"),
		um.SetCol("status").ToArg(status),
		um.SetCol("resolved_at").To("now()"),
		um.Where(where),
		um.Where(psql.Quote("status").EQ(psql.Arg(model.JoinRequestPending))),
		um.Returning("id"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[string])
}
