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

type Invitation struct {
	ID         string                 `db:"id"`
	TeamID     string                 `db:"team_id"`
	TeamName   string                 `db:"team_name"`
	InviterID  string                 `db:"inviter_id"`
	UserID     string                 `db:"user_id"`
	Status     model.InvitationStatus `db:"status"`
	CreatedAt  time.Time              `db:"created_at"`
	ResolvedAt *time.Time             `db:"resolved_at"`
}

type InvitationRepository interface {
	// Create fails with ErrAlreadyExists when the pair already has a pending invitation.
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, id string) (*Invitation, error)
	Lock(ctx context.Context, id string) (*Invitation, error)
	Resolve(ctx context.Context, id string, status model.InvitationStatus) (*Invitation, error)
	CancelPendingByTeam(ctx context.Context, teamID string) ([]*Invitation, error)
	ListPendingByUser(ctx context.Context, userID string) ([]*Invitation, error)
}

var invitationColumns = []any{
	"i.id", "i.team_id", "t.name", "i.inviter_id", "i.user_id", "i.status", "i.created_at", "i.resolved_at",
}

type pgxInvitationRepository struct {
	pool *pgxpool.Pool
}

func NewPgxInvitationRepository(pool *pgxpool.Pool) InvitationRepository {
	return &pgxInvitationRepository{pool: pool}
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	inv := &Invitation{}
	if err := row.Scan(
		&inv.ID,
		&inv.TeamID,
		&inv.TeamName,
		&inv.InviterID,
		&inv.UserID,
		&inv.Status,
		&inv.CreatedAt,
		&inv.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return inv, nil
}

func (p *pgxInvitationRepository) Create(ctx context.Context, inv *Invitation) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("invitation", "id", "team_id", "inviter_id", "user_id", "status"),
		im.Values(psql.Arg(inv.ID), psql.Arg(inv.TeamID), psql.Arg(inv.InviterID), psql.Arg(inv.UserID), psql.Arg(inv.Status)),
		im.Returning("created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&inv.CreatedAt)
	return translate(err)
}

func (p *pgxInvitationRepository) selectQuery(where bob.Expression) bob.BaseQuery[*dialect.SelectQuery] {
	return psql.Select(
		sm.Columns(invitationColumns...),
		sm.From("invitation").As("i"),
		sm.InnerJoin("team").As("t").On(psql.Quote("t", "id").EQ(psql.Quote("i", "team_id"))),
		sm.Where(where),
		sm.OrderBy("i.created_at").Asc(),
	)
}

func (p *pgxInvitationRepository) Get(ctx context.Context, id string) (*Invitation, error) {
	return p.getOne(ctx, id, false)
}

func (p *pgxInvitationRepository) Lock(ctx context.Context, id string) (*Invitation, error) {
	return p.getOne(ctx, id, true)
}

func (p *pgxInvitationRepository) getOne(ctx context.Context, id string, forUpdate bool) (*Invitation, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := p.selectQuery(psql.Quote("i", "id").EQ(psql.Arg(id)))
	if forUpdate {
		q.Apply(sm.ForUpdate("i"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := scanInvitation(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, translate(err)
	}
	return inv, nil
}

func (p *pgxInvitationRepository) ListPendingByUser(ctx context.Context, userID string) ([]*Invitation, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := p.selectQuery(psql.Quote("i", "user_id").EQ(psql.Arg(userID)).
		And(psql.Quote("i", "status").EQ(psql.Arg(model.InvitationPending))))

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Invitation, error) {
		return scanInvitation(row)
	})
}

func (p *pgxInvitationRepository) Resolve(ctx context.Context, id string, status model.InvitationStatus) (*Invitation, error) {
	ids, err := p.resolveWhere(ctx, status, psql.Quote("id").EQ(psql.Arg(id)))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return p.Get(ctx, ids[0])
}

func (p *pgxInvitationRepository) CancelPendingByTeam(ctx context.Context, teamID string) ([]*Invitation, error) {
	ids, err := p.resolveWhere(ctx, model.InvitationCancelled, psql.Quote("team_id").EQ(psql.Arg(teamID)))
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	out := make([]*Invitation, 0, len(ids))
	for _, id := range ids {
		inv, err := p.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (p *pgxInvitationRepository) resolveWhere(ctx context.Context, status model.InvitationStatus, where bob.Expression) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("invitation"),
		um.SetCol("status").ToArg(status),
		um.SetCol("resolved_at").To("now()"),
		um.Where(where),
		um.Where(psql.Quote("status").EQ(psql.Arg(model.InvitationPending))),
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
