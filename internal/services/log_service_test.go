package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tryexperimenter/experimenter-api/internal/alerting"
	"github.com/tryexperimenter/experimenter-api/internal/dto"
	"github.com/tryexperimenter/experimenter-api/internal/tabular"
)

type fakeSource struct {
	rows map[string][]tabular.Record
	errs map[string]error
}

func (f *fakeSource) Fetch(_ context.Context, relation string, _ map[string]any) ([]tabular.Record, error) {
	if err := f.errs[relation]; err != nil {
		return nil, err
	}
	return f.rows[relation], nil
}

func newLogServiceAt(source tabular.Source, now time.Time) *LogService {
	svc := NewLogService(source, alerting.New(false), time.Millisecond)
	svc.now = func() time.Time { return now }
	return svc
}

func logRow(overrides tabular.Record) tabular.Record {
	row := tabular.Record{
		"first_name":            "Ada",
		"display_datetime":      "2024-03-01 00:00:00",
		"group_id":              "g1",
		"group_name":            "Sleep Experiments",
		"sub_group_id":          "sg1",
		"sub_group_name":        "Sleep - Week 1",
		"experiment_prompt_id":  "e1",
		"experiment_prompt":     "Go to bed by 10pm",
		"observation_prompt_id": "op1",
		"observation_prompt":    "What happened?",
		"observation_id":        "o1",
		"observation":           "Slept well",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

func TestExperimenterLogAssemblesNestedDocument(t *testing.T) {
	source := &fakeSource{rows: map[string][]tabular.Record{
		tabular.RelExperimenterLog: {
			logRow(nil),
			logRow(tabular.Record{
				"observation_prompt_id": "op2",
				"observation_prompt":    "Anything else?",
				"observation_id":        "",
				"observation":           "",
			}),
			logRow(tabular.Record{
				"display_datetime":      "2024-03-08 00:00:00",
				"sub_group_id":          "sg2",
				"sub_group_name":        "Sleep - Week 2",
				"experiment_prompt_id":  "e2",
				"experiment_prompt":     "Don't nap after 3pm",
				"observation_prompt_id": "",
				"observation_prompt":    "",
				"observation_id":        "",
				"observation":           "",
			}),
		},
	}}
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	resp, err := newLogServiceAt(source, now).ExperimenterLog(context.Background(), "pub-1")
	require.NoError(t, err)

	require.Equal(t, "pub-1", resp.PublicUserID)
	require.Equal(t, "Ada", resp.FirstName)
	require.Equal(t, "True", resp.ExperimentsToDisplay)
	require.Equal(t, "False", resp.Error)
	require.Equal(t, 10, resp.DaysOfExperimenting)

	require.Len(t, resp.Groups, 1)
	group := resp.Groups[0]
	require.Equal(t, "Sleep Experiments", group.GroupName)
	require.Len(t, group.SubGroups, 2)

	week1 := group.SubGroups[0]
	require.Equal(t, "Sleep - Week 1", week1.SubGroupName)
	require.Equal(t, "March 1, 2024", week1.SubGroupDisplayDate)
	require.Len(t, week1.Experiments, 1)
	obs, ok := week1.Experiments[0].Observations.([]dto.ObservationEntry)
	require.True(t, ok)
	require.Len(t, obs, 2)
	require.Equal(t, "Slept well", obs[0].Observation)
	require.Equal(t, "", obs[1].Observation)

	week2 := group.SubGroups[1]
	require.Equal(t, "March 8, 2024", week2.SubGroupDisplayDate)
	require.Len(t, week2.Experiments, 1)
	require.Equal(t, "Don’t nap after 3pm", week2.Experiments[0].ExperimentPrompt)
	require.Equal(t, "None", week2.Experiments[0].Observations)
}

func TestExperimenterLogKeepsFirstSeenOrder(t *testing.T) {
	source := &fakeSource{rows: map[string][]tabular.Record{
		tabular.RelExperimenterLog: {
			logRow(tabular.Record{"group_id": "g2", "group_name": "Focus"}),
			logRow(tabular.Record{"group_id": "g1", "group_name": "Sleep"}),
			logRow(tabular.Record{"group_id": "g2", "group_name": "Focus", "sub_group_id": "sg9", "sub_group_name": "Focus - Week 1"}),
		},
	}}
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	resp, err := newLogServiceAt(source, now).ExperimenterLog(context.Background(), "pub-1")
	require.NoError(t, err)

	require.Len(t, resp.Groups, 2)
	require.Equal(t, "g2", resp.Groups[0].GroupID)
	require.Equal(t, "g1", resp.Groups[1].GroupID)
	require.Len(t, resp.Groups[0].SubGroups, 2)
}

func TestExperimenterLogUserWithoutAssignments(t *testing.T) {
	source := &fakeSource{rows: map[string][]tabular.Record{
		tabular.RelExperimenterLog: {
			{"first_name": "Ada", "group_name": "", "display_datetime": ""},
		},
	}}
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	resp, err := newLogServiceAt(source, now).ExperimenterLog(context.Background(), "pub-1")
	require.NoError(t, err)

	require.Equal(t, "False", resp.ExperimentsToDisplay)
	require.Equal(t, "Ada", resp.FirstName)
	require.Zero(t, resp.DaysOfExperimenting)
	require.Nil(t, resp.Groups)
}

func TestExperimenterLogUnknownUserDelays(t *testing.T) {
	source := &fakeSource{rows: map[string][]tabular.Record{}}
	svc := NewLogService(source, alerting.New(false), 30*time.Millisecond)

	start := time.Now()
	_, err := svc.ExperimenterLog(context.Background(), "nope")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrUserNotFound)
	require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestDaysOfExperimentingFloorsAndClamps(t *testing.T) {
	rows := []tabular.Record{
		{"display_datetime": "2024-03-01T00:00:00Z"},
		{"display_datetime": "2024-03-05T00:00:00Z"},
	}

	now := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	require.Equal(t, 10, daysOfExperimenting(now, rows))

	sameDay := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	require.Equal(t, 1, daysOfExperimenting(sameDay, rows))

	before := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 1, daysOfExperimenting(before, rows))
}
