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

type Team struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Game         string    `db:"game"`
	Description  string    `db:"description"`
	Requirements string    `db:"requirements"`
	MaxMembers   int       `db:"max_members"`
	IsPrivate    bool      `db:"is_private"`
	Avatar       string    `db:"avatar"`
	TeamCode     string    `db:"team_code"`
	Wins         int       `db:"wins"`
	Losses       int       `db:"losses"`
	MemberCount  int       `db:"member_count"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type TeamPatch struct {
	ID           string  `db:"id"`
	Name         *string `db:"name"`
	Game         *string `db:"game"`
	Description  *string `db:"description"`
	Requirements *string `db:"requirements"`
	MaxMembers   *int    `db:"max_members"`
	IsPrivate    *bool   `db:"is_private"`
	Avatar       *string `db:"avatar"`
}

type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	GetByCode(ctx context.Context, code string) (*Team, error)
	// Lock takes the row lock that serializes every membership change of a team.
	Lock(ctx context.Context, id string) (*Team, error)
	List(ctx context.Context, filter model.TeamFilter) ([]*Team, error)
	Patch(ctx context.Context, patch *TeamPatch) (*Team, error)
	Delete(ctx context.Context, id string) error
}

const memberCountColumn = "(SELECT count(*) FROM team_member m WHERE m.team_id = team.id) AS member_count"

var teamColumns = []any{
	"id", "name", "game", "description", "requirements", "max_members", "is_private",
	"avatar", "team_code", "wins", "losses", memberCountColumn, "created_at", "updated_at",
}

type pgxTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Game,
		&t.Description,
		&t.Requirements,
		&t.MaxMembers,
		&t.IsPrivate,
		&t.Avatar,
		&t.TeamCode,
		&t.Wins,
		&t.Losses,
		&t.MemberCount,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team", "id", "name", "game", "description", "requirements", "max_members", "is_private", "avatar", "team_code"),
		im.Values(
			psql.Arg(team.ID),
			psql.Arg(team.Name),
			psql.Arg(team.Game),
			psql.Arg(team.Description),
			psql.Arg(team.Requirements),
			psql.Arg(team.MaxMembers),
			psql.Arg(team.IsPrivate),
			psql.Arg(team.Avatar),
			psql.Arg(team.TeamCode),
		),
		im.Returning("created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&team.CreatedAt, &team.UpdatedAt)
	return translate(err)
}

func (p *pgxTeamRepository) Get(ctx context.Context, id string) (*Team, error) {
	return p.getOne(ctx, psql.Quote("id").EQ(psql.Arg(id)), false)
}

func (p *pgxTeamRepository) GetByCode(ctx context.Context, code string) (*Team, error) {
	return p.getOne(ctx, psql.Quote("team_code").EQ(psql.Arg(code)), false)
}

func (p *pgxTeamRepository) Lock(ctx context.Context, id string) (*Team, error) {
	return p.getOne(ctx, psql.Quote("id").EQ(psql.Arg(id)), true)
}

func (p *pgxTeamRepository) getOne(ctx context.Context, where bob.Expression, forUpdate bool) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(teamColumns...),
		sm.From("team"),
		sm.Where(where),
		sm.Where(psql.Quote("deleted_at").IsNull()),
	)
	if forUpdate {
		q.Apply(sm.ForUpdate("team"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTeam(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (p *pgxTeamRepository) List(ctx context.Context, filter model.TeamFilter) ([]*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(teamColumns...),
		sm.From("team"),
		sm.Where(psql.Quote("deleted_at").IsNull()),
		sm.Where(psql.Quote("is_private").EQ(psql.Arg(false))),
		sm.OrderBy("created_at").Desc(),
	)
	if filter.Game != "" {
		q.Apply(sm.Where(psql.Quote("game").EQ(psql.Arg(filter.Game))))
	}
	if filter.Search != "" {
		q.Apply(sm.Where(psql.Quote("name").ILike(psql.Arg("%" + filter.Search + "%"))))
	}
	if filter.Limit > 0 {
		q.Apply(sm.Limit(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Apply(sm.Offset(filter.Offset))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Team, error) {
		return scanTeam(row)
	})
}

func (p *pgxTeamRepository) Patch(ctx context.Context, patch *TeamPatch) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 8)
	if patch.Name != nil {
		sets = append(sets, um.SetCol("name").ToArg(*patch.Name))
	}
	if patch.Game != nil {
		sets = append(sets, um.SetCol("game").ToArg(*patch.Game))
	}
	if patch.Description != nil {
		sets = append(sets, um.SetCol("description").ToArg(*patch.Description))
	}
	if patch.Requirements != nil {
		sets = append(sets, um.SetCol("requirements").ToArg(*patch.Requirements))
	}
	if patch.MaxMembers != nil {
		sets = append(sets, um.SetCol("max_members").ToArg(*patch.MaxMembers))
	}
	if patch.IsPrivate != nil {
		sets = append(sets, um.SetCol("is_private").ToArg(*patch.IsPrivate))
	}
	if patch.Avatar != nil {
		sets = append(sets, um.SetCol("avatar").ToArg(*patch.Avatar))
	}
	sets = append(sets, um.SetCol("updated_at").To("now()"))

	q := psql.Update(
		um.Table("team"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Where(psql.Quote("deleted_at").IsNull()),
		um.Returning(teamColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTeam(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// Delete soft-deletes the team; its row stays for historical requests.
func (p *pgxTeamRepository) Delete(ctx context.Context, id string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("team"),
		um.SetCol("deleted_at").To("now()"),
		um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		um.Where(psql.Quote("deleted_at").IsNull()),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
