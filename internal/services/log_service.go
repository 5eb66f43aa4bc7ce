package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tryexperimenter/experimenter-api/internal/alerting"
	"github.com/tryexperimenter/experimenter-api/internal/dto"
	"github.com/tryexperimenter/experimenter-api/internal/tabular"
)

// ErrUserNotFound covers both an absent public_user_id and an inactive one.
// Callers must not distinguish the two in message or timing.
var ErrUserNotFound = errors.New("public_user_id not found or inactive")

// Column table for the experimenter-log relation. Free-text columns get the
// smart-quote treatment; display_datetime is canonicalized; everything else
// passes through.
var logColumns = []tabular.ColumnSpec{
	{Source: "first_name", Target: "first_name", Kind: tabular.KindRaw},
	{Source: "display_datetime", Target: "display_datetime", Kind: tabular.KindDatetime},
	{Source: "group_id", Target: "group_id", Kind: tabular.KindRaw},
	{Source: "group_name", Target: "group_name", Kind: tabular.KindSmartText},
	{Source: "sub_group_id", Target: "sub_group_id", Kind: tabular.KindRaw},
	{Source: "sub_group_name", Target: "sub_group_name", Kind: tabular.KindSmartText},
	{Source: "experiment_prompt_id", Target: "experiment_prompt_id", Kind: tabular.KindRaw},
	{Source: "experiment_prompt", Target: "experiment_prompt", Kind: tabular.KindSmartText},
	{Source: "observation_prompt_id", Target: "observation_prompt_id", Kind: tabular.KindRaw},
	{Source: "observation_prompt", Target: "observation_prompt", Kind: tabular.KindSmartText},
	{Source: "observation_id", Target: "observation_id", Kind: tabular.KindRaw},
	{Source: "observation", Target: "observation", Kind: tabular.KindSmartText},
}

// LogService assembles the per-user experimenter log from the flat joined
// rows delivered by the tabular source.
type LogService struct {
	source        tabular.Source
	notifier      *alerting.Notifier
	notFoundDelay time.Duration
	now           func() time.Time
}

func NewLogService(source tabular.Source, notifier *alerting.Notifier, notFoundDelay time.Duration) *LogService {
	return &LogService{
		source:        source,
		notifier:      notifier,
		notFoundDelay: notFoundDelay,
		now:           time.Now,
	}
}

// ExperimenterLog builds the nested log document for one public_user_id.
func (s *LogService) ExperimenterLog(ctx context.Context, publicUserID string) (*dto.ExperimenterLogResponse, error) {
	resp, err := s.experimenterLog(ctx, publicUserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			slog.Info("user_lookups did not contain an active public_user_id", "public_user_id", publicUserID)
			// Equalize response latency between absent and inactive
			// identifiers. Deliberately not context-aware: the delay must
			// run to completion even if the caller gave up.
			time.Sleep(s.notFoundDelay)
			return nil, err
		}
		slog.Error("experimenter log assembly failed", "public_user_id", publicUserID, "error", err.Error())
		s.notifier.Notify("API | experimenter_log", err)
		return nil, err
	}

	slog.Info("assembled experimenter log", "public_user_id", publicUserID)
	return resp, nil
}

func (s *LogService) experimenterLog(ctx context.Context, publicUserID string) (*dto.ExperimenterLogResponse, error) {
	raw, err := s.source.Fetch(ctx, tabular.RelExperimenterLog, map[string]any{
		"public_user_id": publicUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch experimenter log rows: %w", err)
	}

	// Case 1: identifier not found or inactive -- the join returned nothing.
	if len(raw) == 0 {
		return nil, ErrUserNotFound
	}

	rows, err := tabular.Normalize(raw, logColumns)
	if err != nil {
		return nil, fmt.Errorf("normalize experimenter log rows: %w", err)
	}

	return assembleLog(s.now().UTC(), publicUserID, rows), nil
}

// assembleLog reshapes normalized flat rows into the three-level nested
// document. Groups, sub-groups and experiment prompts keep the order in
// which their ids first appear; the source query's ORDER BY owns display
// order and nothing here re-sorts.
func assembleLog(now time.Time, publicUserID string, rows []tabular.Record) *dto.ExperimenterLogResponse {
	resp := &dto.ExperimenterLogResponse{
		PublicUserID:         publicUserID,
		FirstName:            rows[0].Get("first_name"),
		ExperimentsToDisplay: "True",
		Error:                "False",
	}

	// Case 2: user exists but has nothing assigned -- a single row carrying
	// only the user's info.
	if len(rows) == 1 && rows[0].Get("group_name") == "" {
		resp.ExperimentsToDisplay = "False"
		return resp
	}

	resp.DaysOfExperimenting = daysOfExperimenting(now, rows)
	resp.Groups = assembleGroups(rows)
	return resp
}

// daysOfExperimenting counts whole days since the earliest display
// datetime, plus one to include today, never less than one.
func daysOfExperimenting(now time.Time, rows []tabular.Record) int {
	var earliest time.Time
	for _, row := range rows {
		t := row.Time("display_datetime")
		if t.IsZero() {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	if earliest.IsZero() {
		return 1
	}

	days := int(now.Sub(earliest).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

type experimentAcc struct {
	id, text     string
	observations []dto.ObservationEntry
}

type subGroupAcc struct {
	id, name    string
	displayDate time.Time
	order       []*experimentAcc
	index       map[string]*experimentAcc
}

type groupAcc struct {
	id, name string
	order    []*subGroupAcc
	index    map[string]*subGroupAcc
}

func assembleGroups(rows []tabular.Record) []dto.GroupEntry {
	var groups []*groupAcc
	groupIndex := make(map[string]*groupAcc)

	for _, row := range rows {
		groupID := row.Get("group_id")
		g, ok := groupIndex[groupID]
		if !ok {
			g = &groupAcc{
				id:    groupID,
				name:  row.Get("group_name"),
				index: make(map[string]*subGroupAcc),
			}
			groupIndex[groupID] = g
			groups = append(groups, g)
		}

		subGroupID := row.Get("sub_group_id")
		sg, ok := g.index[subGroupID]
		if !ok {
			sg = &subGroupAcc{
				id:          subGroupID,
				name:        row.Get("sub_group_name"),
				displayDate: row.Time("display_datetime"),
				index:       make(map[string]*experimentAcc),
			}
			g.index[subGroupID] = sg
			g.order = append(g.order, sg)
		}

		experimentID := row.Get("experiment_prompt_id")
		exp, ok := sg.index[experimentID]
		if !ok {
			exp = &experimentAcc{
				id:   experimentID,
				text: row.Get("experiment_prompt"),
			}
			sg.index[experimentID] = exp
			sg.order = append(sg.order, exp)
		}

		exp.observations = append(exp.observations, dto.ObservationEntry{
			ObservationPromptID: row.Get("observation_prompt_id"),
			ObservationPrompt:   row.Get("observation_prompt"),
			Observation:         row.Get("observation"),
		})
	}

	out := make([]dto.GroupEntry, 0, len(groups))
	for _, g := range groups {
		subGroups := make([]dto.SubGroupEntry, 0, len(g.order))
		for _, sg := range g.order {
			experiments := make([]dto.Experiment, 0, len(sg.order))
			for _, exp := range sg.order {
				experiments = append(experiments, dto.Experiment{
					ExperimentPromptID: exp.id,
					ExperimentPrompt:   exp.text,
					Observations:       collapseObservations(exp.observations),
				})
			}
			subGroups = append(subGroups, dto.SubGroupEntry{
				SubGroupID:   sg.id,
				SubGroupName: sg.name,
				// Long human date, no zero-padded day.
				SubGroupDisplayDate: sg.displayDate.Format("January 2, 2006"),
				Experiments:         experiments,
			})
		}
		out = append(out, dto.GroupEntry{
			GroupID:   g.id,
			GroupName: g.name,
			SubGroups: subGroups,
		})
	}
	return out
}

// collapseObservations replaces the degenerate single all-empty pair left
// behind by the observation-prompt LEFT JOIN with the literal "None".
// Without this clients would see a spurious one-element array of empty
// strings for experiments that have no observation prompts.
func collapseObservations(entries []dto.ObservationEntry) any {
	if len(entries) == 1 &&
		entries[0].ObservationPromptID == "" &&
		entries[0].ObservationPrompt == "" &&
		entries[0].Observation == "" {
		return "None"
	}
	return entries
}
