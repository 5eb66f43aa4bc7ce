package tabular

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PostgresSource serves the named relations from Postgres via GORM. Each
// relation maps to one join query; the ORDER BY of those queries is the
// display-order contract relied on downstream.
type PostgresSource struct {
	db *gorm.DB
}

func NewPostgresSource(db *gorm.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Case 1: public_user_id not found / not active -- no rows.
// Case 2: user has no experiments -- one row with just the user's info.
// Case 3: user has experiments -- one row per experiment/observation prompt.
// Case 4: user also has observations -- same rows with observation filled in.
const experimenterLogSQL = `
WITH identified_user AS (
SELECT
	u.id AS user_id,
	u.first_name
FROM
	user_lookups ul,
	users u
WHERE
	ul.public_user_id = ? AND
	ul.status = 'active' AND
	u.id = ul.user_id),

assigned_experiments AS (
SELECT
	iu.user_id,
	g.id AS group_id,
	g.group_name,
	sg.id AS sub_group_id,
	sg.sub_group_name,
	ep.id AS experiment_prompt_id,
	ep.experiment_prompt,
	op.id AS observation_prompt_id,
	op.observation_prompt,
	sga.action_datetime AS display_datetime,
	ep.display_order AS ep_display_order,
	op.display_order AS op_display_order
FROM
	identified_user iu,
	sub_group_actions sga,
	sub_group_action_templates sgat,
	sub_groups sg,
	groups g,
	experiment_prompts ep,
	observation_prompts op
WHERE
	sga.user_id = iu.user_id AND sga.status = 'display_after_action_datetime' AND
	sga.action_datetime < NOW() AT TIME ZONE 'UTC' AND
	sgat.id = sga.sub_group_action_template_id AND
	sg.id = sgat.sub_group_id AND
	g.id = sg.group_id AND
	ep.sub_group_id = sg.id AND
	op.experiment_prompt_id = ep.id
),

user_observations AS (
SELECT
	o.observation_prompt_id,
	o.id AS observation_id,
	o.observation
FROM
	assigned_experiments ae,
	observations o
WHERE
	o.observation_prompt_id = ae.observation_prompt_id AND
	o.user_id = ae.user_id AND
	o.status = 'active'
)

SELECT
	iu.first_name,
	ae.display_datetime,
	ae.group_id,
	ae.group_name,
	ae.sub_group_id,
	ae.sub_group_name,
	ae.experiment_prompt_id,
	ae.experiment_prompt,
	ae.observation_prompt_id,
	ae.observation_prompt,
	uo.observation_id,
	uo.observation
FROM identified_user iu
LEFT JOIN assigned_experiments ae ON iu.user_id = ae.user_id
LEFT JOIN user_observations uo ON ae.observation_prompt_id = uo.observation_prompt_id
ORDER BY
	display_datetime DESC,
	ep_display_order,
	op_display_order;`

// Candidates are restricted to users who are active participants of the
// group. sub_group_actions.status should already be 'canceled' for paused
// groups, so the group_assignments check is a second line of defense.
const messageCandidatesSQL = `
SELECT
	sga.id AS sub_group_action_id,
	sg.id AS sub_group_id,
	u.first_name,
	u.email AS user_email,
	u.url_stub_experimenter_log,
	g.group_name,
	sg.sub_group_name,
	sgat.email_subject,
	sgat.email_body,
	sga.action_datetime,
	sga.status
FROM
	sub_group_actions sga,
	sub_group_action_templates sgat,
	sub_groups sg,
	groups g,
	users u,
	group_assignments ga
WHERE
	sga.status IN ('message_to_be_scheduled', 'message_failed_to_schedule') AND
	sga.action_datetime BETWEEN ? AND ? AND
	sgat.id = sga.sub_group_action_template_id AND
	sg.id = sgat.sub_group_id AND
	g.id = sg.group_id AND
	u.id = sga.user_id AND
	ga.status = 'active' AND ga.user_id = u.id AND ga.group_id = g.id
ORDER BY sga.action_datetime;`

const experimentPromptsSQL = `
SELECT
	sub_group_id,
	experiment_prompt,
	display_order
FROM experiment_prompts
WHERE sub_group_id IN ?
ORDER BY sub_group_id, display_order;`

func (s *PostgresSource) Fetch(ctx context.Context, relation string, params map[string]any) ([]Record, error) {
	var (
		sql  string
		args []any
	)

	switch relation {
	case RelExperimenterLog:
		sql = experimenterLogSQL
		args = []any{params["public_user_id"]}
	case RelMessageCandidates:
		sql = messageCandidatesSQL
		args = []any{params["from"], params["to"]}
	case RelExperimentPrompts:
		sql = experimentPromptsSQL
		args = []any{params["sub_group_ids"]}
	default:
		return nil, fmt.Errorf("unknown relation %q", relation)
	}

	var rows []map[string]any
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", relation, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(row))
		for col, val := range row {
			rec[col] = stringify(val)
		}
		records = append(records, rec)
	}
	return records, nil
}

// stringify flattens driver values into the all-text Record representation.
// NULL becomes the empty-string sentinel.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
