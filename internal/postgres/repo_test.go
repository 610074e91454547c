package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const aggregateSchema = `
CREATE TABLE IF NOT EXISTS users (id text PRIMARY KEY, username text NOT NULL);
CREATE TABLE IF NOT EXISTS plans (id text PRIMARY KEY, creator_id text NOT NULL);
CREATE TABLE IF NOT EXISTS plan_participants (
    plan_id   text NOT NULL,
    user_id   text NOT NULL,
    joined_at timestamptz NOT NULL,
    is_admin  boolean NOT NULL DEFAULT false,
    PRIMARY KEY (plan_id, user_id)
);
`

// testPool connects to PLANCHAT_TEST_DSN and applies the schema.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PLANCHAT_TEST_DSN")
	if dsn == "" {
		t.Skip("PLANCHAT_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, Config{DSN: dsn, MaxConns: 4, ApplicationName: "plan-chat-test"})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = Migrate(ctx, pool, migrations.FS)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, aggregateSchema)
	require.NoError(t, err)
	return pool
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := testPool(t)
	applied, err := Migrate(context.Background(), pool, migrations.FS)
	require.NoError(t, err)
	require.Empty(t, applied)
}

func TestMessageRepository_AppendQuery(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()
	planID := "plan-" + uuid.NewString()

	base := time.Now().UTC().Truncate(time.Microsecond)
	var appended []domain.Message
	for i, at := range []time.Time{base, base, base.Add(time.Second)} {
		m := domain.Message{
			ID:        uuid.NewString(),
			PlanID:    planID,
			Sender:    domain.Sender{ID: "u1", Username: "alice"},
			Body:      []string{"a", "b", "c"}[i],
			CreatedAt: at,
		}
		require.NoError(t, repo.Append(ctx, &m))
		require.NotZero(t, m.Seq)
		appended = append(appended, m)
	}

	all, err := repo.Query(ctx, planID, domain.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{all[0].Body, all[1].Body, all[2].Body})

	since, err := repo.Query(ctx, planID, domain.QueryOpts{Since: base.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	require.Equal(t, "c", since[0].Body)

	after, err := repo.Query(ctx, planID, domain.QueryOpts{After: &domain.Position{CreatedAt: appended[0].CreatedAt, Seq: appended[0].Seq}})
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.Equal(t, appended[1].ID, after[0].ID)

	limited, err := repo.Query(ctx, planID, domain.QueryOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestPlanRepository_RoleAndUser(t *testing.T) {
	pool := testPool(t)
	repo := NewPlanRepository(pool)
	ctx := context.Background()

	planID := "plan-" + uuid.NewString()
	creator, member, stranger := uuid.NewString(), uuid.NewString(), uuid.NewString()
	joined := time.Now().UTC().Truncate(time.Microsecond)

	_, err := pool.Exec(ctx, `INSERT INTO users (id, username) VALUES ($1, 'creator'), ($2, 'member')`, creator, member)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO plans (id, creator_id) VALUES ($1, $2)`, planID, creator)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO plan_participants (plan_id, user_id, joined_at, is_admin) VALUES ($1, $2, $3, true)`, planID, member, joined)
	require.NoError(t, err)

	role, err := repo.Role(ctx, planID, creator)
	require.NoError(t, err)
	require.True(t, role.IsCreator)
	require.False(t, role.IsParticipant)

	role, err = repo.Role(ctx, planID, member)
	require.NoError(t, err)
	require.True(t, role.IsParticipant)
	require.True(t, role.IsAdmin)
	require.NotNil(t, role.JoinedAt)
	require.True(t, joined.Equal(*role.JoinedAt))

	role, err = repo.Role(ctx, planID, stranger)
	require.NoError(t, err)
	require.False(t, role.IsMember())

	_, err = repo.Role(ctx, "missing-"+planID, creator)
	require.ErrorIs(t, err, domain.ErrPlanNotFound)

	id, err := repo.User(ctx, member)
	require.NoError(t, err)
	require.Equal(t, "member", id.Username)

	_, err = repo.User(ctx, stranger)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
