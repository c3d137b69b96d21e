package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

const openStatuses = `('drafted','letter_ready','mailed','awaiting_response')`

// All returns the invariants that must hold over the dispute tables at every
// committed instant. Each query returns offending rows.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_open_dispute_per_pair",
			SQL: `SELECT tradeline_id, bureau, COUNT(*) FROM disputes
                  WHERE status IN ` + openStatuses + `
                  GROUP BY tradeline_id, bureau HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_rounds_contiguous_from_one",
			SQL: `SELECT tradeline_id, bureau, MIN(round), MAX(round), COUNT(*) FROM disputes
                  GROUP BY tradeline_id, bureau
                  HAVING MIN(round) <> 1 OR MAX(round) <> COUNT(*)`,
		},
		{
			Name: "O3_earlier_rounds_terminal",
			SQL: `SELECT later.id, earlier.id, earlier.status FROM disputes later
                  JOIN disputes earlier
                    ON earlier.tradeline_id = later.tradeline_id
                   AND earlier.bureau = later.bureau
                   AND earlier.round < later.round
                  WHERE earlier.status IN ` + openStatuses,
		},
		{
			Name: "O4_no_round_after_deleted",
			SQL: `SELECT later.id FROM disputes later
                  JOIN disputes earlier
                    ON earlier.tradeline_id = later.tradeline_id
                   AND earlier.bureau = later.bureau
                   AND earlier.round < later.round
                  WHERE earlier.status = 'deleted'`,
		},
		{
			Name: "O5_letter_linkage",
			SQL: `SELECT d.id, d.letter_id, l.id FROM disputes d
                  LEFT JOIN letters l ON l.dispute_id = d.id
                  WHERE (d.letter_id IS NULL) <> (l.id IS NULL)
                     OR d.letter_id <> l.id`,
		},
		{
			Name: "O6_status_fields",
			SQL: `SELECT id, status FROM disputes
                  WHERE (status <> 'drafted' AND letter_id IS NULL)
                     OR (status NOT IN ('drafted','letter_ready') AND mailed_on IS NULL)
                     OR (status IN ('verified','deleted') AND responded_on IS NULL)
                     OR (status NOT IN ('verified','deleted') AND responded_on IS NOT NULL)`,
		},
		{
			Name: "O7_timeline_matches_status",
			SQL: `SELECT d.id, d.status, last.to_status FROM disputes d
                  LEFT JOIN LATERAL (
                      SELECT to_status FROM dispute_events e
                      WHERE e.dispute_id = d.id ORDER BY e.id DESC LIMIT 1
                  ) last ON true
                  WHERE last.to_status IS DISTINCT FROM d.status::text
                     OR NOT EXISTS (SELECT 1 FROM dispute_events c WHERE c.dispute_id = d.id AND c.type = 'DISPUTE_CREATED')`,
		},
		{
			Name: "O8_outbox_drains",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
